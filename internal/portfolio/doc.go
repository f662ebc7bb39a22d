// Package portfolio defines the portfolio document: profile, worlds,
// characters, creatures and settings.
//
// The document is a single aggregate. Callers never patch fields in storage;
// they build the next full document (usually from [Document.Clone] plus the
// editing helpers in this package) and hand it to the persistence layer.
//
// Documents read from storage or imported from files go through [Normalize]
// first, which upgrades legacy shapes and fills defaults without touching
// the stored bytes.
package portfolio
