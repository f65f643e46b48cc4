package model

import (
	"fmt"
	"sort"
	"strings"
)

// Credentials is an opaque bag of session cookies supplied by the caller.
//
// The downloader never creates or refreshes credentials; it only forwards them
// as a Cookie header and uses their presence as the authorization state.
type Credentials map[string]string

// Authorized reports whether the bag carries any non-empty cookie.
func (c Credentials) Authorized() bool {
	for _, v := range c {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// CookieHeader renders the bag as a Cookie header value with a stable order.
func (c Credentials) CookieHeader() string {
	if len(c) == 0 {
		return ""
	}
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if c[name] == "" {
			continue
		}
		parts = append(parts, name+"="+c[name])
	}
	return strings.Join(parts, "; ")
}

// ParseCredentials parses "name=value" pairs separated by ';' or supplied
// as separate arguments.
//
//	ParseCredentials("SESSDATA=abc; bili_jct=def")
func ParseCredentials(pairs ...string) (Credentials, error) {
	creds := Credentials{}
	for _, raw := range pairs {
		for _, pair := range strings.Split(raw, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, value, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("invalid cookie %q, want name=value", pair)
			}
			creds[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return creds, nil
}
