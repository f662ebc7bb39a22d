// Package resolve turns image references into displayable URLs.
//
// Stored blob references are materialized as transient "blob:" URLs held by an
// ObjectURLs registry until released. Every other reference is returned as is.
package resolve
