// Package feishu implements the destination client: tenant token
// caching, Bitable record search and mutation, and media uploads with
// an automatic direct/chunked split at 20 MiB.
//
// Record and upload operations fail soft with boolean outcomes; only
// the initial token exchange is treated as fatal, since without a
// token nothing downstream can succeed.
package feishu
