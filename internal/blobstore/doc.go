// Package blobstore stores binary image data under opaque keys.
//
// # Keys
//
// Keys produced by [NewKey] have the form "img:<uuid>". Any key carrying
// [KeyPrefix] is considered stored image data; the part after the prefix has
// no meaning. Keys are never allocated centrally, so two independent callers
// can create keys without coordination.
//
// # Backends
//
// [Store] has three implementations sharing one contract:
//
//   - [NewMemory]: in-process map, used by tests and ephemeral sessions.
//   - [OpenDir]: one file per key in a directory, written through a temp file
//     and renamed into place.
//   - [OpenSQLite]: a single SQLite database file, the durable local object
//     database used by default.
//
// A missing key is not an error: [Store.Get] reports absence through its
// boolean result.
package blobstore
