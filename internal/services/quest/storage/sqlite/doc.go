// Package sqlite persists quest template records in a SQLite file.
//
// Each template is one row; the embedded quest definition is stored as JSON.
// Schema changes ship as embedded migrations applied on Open.
package sqlite
