// Package zsxq implements the source-platform client: group listing,
// cursor-based topic pagination, file URL resolution and idempotent
// streaming downloads.
//
// All list operations fail soft. A transport or API error is logged and
// an empty result returned, matching the pipeline's policy that a flaky
// source never aborts a run.
package zsxq
