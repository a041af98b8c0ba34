// Package leadimport implements bulk lead ingestion for file uploads.
//
// A browser upload is split client-side into sequential batches that all
// reference one LeadList. The first batch creates the list; every batch is
// normalized and written in fixed-size chunks; the batch flagged as last
// finalizes the list by recounting the leads actually stored against it.
//
// Chunks are written with a single insert that silently skips rows
// colliding with the (list, email) unique index. If that insert fails
// outright, the chunk is retried one lead at a time so a single bad row
// costs only itself.
//
// The service layer depends on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package leadimport
