// Package httpapi exposes the quest engine and template repository as a JSON
// HTTP API.
package httpapi
