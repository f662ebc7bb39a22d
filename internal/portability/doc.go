// Package portability exports the portfolio to interchange files and imports
// it back.
//
// Two formats are supported:
//
//   - Archive: a zip holding data.json (the document, indented) and one file
//     per stored image under images/, named with blobstore.FileName.
//   - Embedded JSON: the document alone, with every stored image reference
//     replaced by a base64 data URI.
//
// Imports replace the whole document. They parse and decode everything before
// the first blob write, and save the document last, so a malformed file
// leaves the previous state untouched.
package portability
