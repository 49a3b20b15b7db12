// Package retry provides exponential backoff and retry logic for handling
// transient failures against the zsxq and Feishu APIs.
//
// Only transient failures are retried: network errors, 429 responses and
// 5xx responses. Genuine 4xx client errors surface immediately.
//
// Basic usage:
//
//	err := retry.Do(func() error {
//		return client.FetchPage(url)
//	}, nil)
package retry
