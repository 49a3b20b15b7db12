// Package session loads the authentication bundle captured by the
// out-of-band browser login. The bundle is a Playwright storage-state
// file: a cookie list plus per-origin localStorage pairs. It is loaded
// once at startup and treated as read-only for the rest of the run.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotAuthenticated signals that no session bundle is present and the
// caller must trigger re-authentication out-of-band.
var ErrNotAuthenticated = errors.New("session bundle not found, re-authentication required")

// Cookie is a single browser cookie from the captured session
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// StorageItem is a single localStorage key/value pair
type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin groups localStorage items under their origin URL
type Origin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// Bundle is the deserialized session state. Immutable once loaded.
type Bundle struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Load reads and parses a session bundle from the given path.
// A missing file returns ErrNotAuthenticated.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotAuthenticated, path)
		}
		return nil, fmt.Errorf("failed to read session bundle: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse session bundle: %w", err)
	}

	if len(bundle.Cookies) == 0 {
		return nil, fmt.Errorf("%w: bundle contains no cookies", ErrNotAuthenticated)
	}

	return &bundle, nil
}

// CookieHeader builds a Cookie header value from all cookies belonging
// to the given domain or one of its subdomains (leading dots in the
// stored domain ignored).
func (b *Bundle) CookieHeader(domainSuffix string) string {
	var pairs []string
	for _, c := range b.Cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == domainSuffix || strings.HasSuffix(domain, "."+domainSuffix) {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
	}
	return strings.Join(pairs, "; ")
}

// LocalStorage returns the key/value pairs stored for the first origin
// containing the given substring, or nil if none matches. Values are
// auxiliary tokens; callers must not speculate about unconfirmed keys.
func (b *Bundle) LocalStorage(originSubstring string) map[string]string {
	for _, origin := range b.Origins {
		if !strings.Contains(origin.Origin, originSubstring) {
			continue
		}
		items := make(map[string]string, len(origin.LocalStorage))
		for _, item := range origin.LocalStorage {
			items[item.Name] = item.Value
		}
		return items
	}
	return nil
}
