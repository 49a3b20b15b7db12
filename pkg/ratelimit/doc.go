// Package ratelimit keeps the pipeline polite to two independently
// rate-limited remote APIs.
//
// TokenBucket budgets API calls over a refill period. Pacer inserts a
// randomized bounded pause between consecutive transfers so the request
// stream does not look mechanical.
package ratelimit
