// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth implements static bearer-token checks for the API and for
// key delivery.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// HeaderToken is the alternative to an Authorization bearer header.
const HeaderToken = "X-API-Token"

// Source tells where a request carried its token.
type Source string

const (
	SourceNone   Source = ""
	SourceBearer Source = "bearer"
	SourceHeader Source = "header"
	SourceQuery  Source = "query"
)

// ExtractToken returns the first token found in the Authorization bearer
// header, the X-API-Token header, or, when allowQuery is set, the token
// query parameter. HLS players often cannot set headers on key requests.
func ExtractToken(r *http.Request, allowQuery bool) (string, Source) {
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v, SourceBearer
		}
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderToken)); v != "" {
		return v, SourceHeader
	}
	if allowQuery {
		if v := r.URL.Query().Get("token"); v != "" {
			return v, SourceQuery
		}
	}
	return "", SourceNone
}

// AuthorizeToken compares got with expected in constant time. An empty
// expected token never authorizes.
func AuthorizeToken(got, expected string) bool {
	if got == "" || strings.TrimSpace(expected) == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
