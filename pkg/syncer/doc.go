// Package syncer orchestrates the mirror pipeline: it walks groups and
// their topic pages newest-first, deduplicates against the destination
// table, downloads and re-uploads attachments, and inserts one record
// per topic.
//
// The pipeline is deliberately sequential with randomized pauses
// between transfers so a run looks like an unhurried reader rather
// than a crawler. Per-group checkpoints make interrupted multi-page
// runs resumable.
package syncer
