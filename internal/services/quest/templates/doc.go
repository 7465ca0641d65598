// Package templates is the quest template repository: an in-memory index
// hydrated once from durable records, with authoring operations that write
// through to the store.
//
// A Repository is constructed with Open and handed to its callers; there is
// no package-level instance.
package templates
