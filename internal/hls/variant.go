// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNoKeyTag is returned when a variant playlist carries no #EXT-X-KEY tag.
var ErrNoKeyTag = errors.New("playlist has no #EXT-X-KEY tag")

const keyTag = "#EXT-X-KEY:"

var uriAttr = regexp.MustCompile(`URI="[^"]*"`)

// KeyURI is the delivery path clients use to fetch a stream's key.
func KeyURI(endpoint, streamID string) string {
	return "/" + strings.Trim(endpoint, "/") + "/" + streamID
}

// RewriteKeyURI replaces the URI of every key tag in the variant playlist at
// path and returns the URIs it replaced.
func RewriteKeyURI(path, uri string) ([]string, error) {
	// #nosec G304 - variant playlists live under the configured web root
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variant playlist: %w", err)
	}

	out, replaced, err := rewriteKeyURI(string(data), uri)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := writeAtomic(path, []byte(out)); err != nil {
		return nil, err
	}
	return replaced, nil
}

func rewriteKeyURI(playlist, uri string) (string, []string, error) {
	lines := strings.Split(playlist, "\n")
	var replaced []string
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), keyTag) {
			continue
		}
		match := uriAttr.FindString(line)
		if match == "" {
			return "", nil, fmt.Errorf("key tag without URI: %q", line)
		}
		replaced = append(replaced, strings.TrimSuffix(strings.TrimPrefix(match, `URI="`), `"`))
		lines[i] = strings.Replace(line, match, `URI="`+uri+`"`, 1)
	}
	if len(replaced) == 0 {
		return "", nil, ErrNoKeyTag
	}
	return strings.Join(lines, "\n"), replaced, nil
}
