// Package storage persists the portfolio document in a string key/value
// store and keeps the in-memory current document.
//
// LocalStorage is the key/value backend. Store owns the document: it loads it
// once, falling back to defaults on any failure, and writes it through on
// every Save. A failed write still updates the in-memory document so the
// running session keeps the edit.
package storage
