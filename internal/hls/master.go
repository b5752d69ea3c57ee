// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/streamvault/internal/media"
)

// Header is the first line of every playlist.
const Header = "#EXTM3U"

const streamInfTag = "#EXT-X-STREAM-INF:"

// Layout maps a stored (web-root relative) playlist path to a filesystem path.
type Layout interface {
	Abs(rel string) (string, error)
}

// ManifestPath returns variantPath relative to masterDir using forward slashes.
func ManifestPath(masterDir, variantPath string) (string, error) {
	rel, err := filepath.Rel(masterDir, variantPath)
	if err != nil {
		return "", fmt.Errorf("relative manifest path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// StreamInf renders the stream-info tag for one variant.
func StreamInf(info media.VariantInfo) string {
	return fmt.Sprintf("%sBANDWIDTH=%d,RESOLUTION=%dx%d", streamInfTag, info.Bandwidth, info.Width, info.Height)
}

func writeEntry(w io.Writer, masterDir string, s *media.VideoStream, layout Layout) error {
	abs, err := layout.Abs(s.PlaylistPath)
	if err != nil {
		return fmt.Errorf("stream %s: %w", s.ID, err)
	}
	rel, err := ManifestPath(masterDir, abs)
	if err != nil {
		return fmt.Errorf("stream %s: %w", s.ID, err)
	}
	_, err = fmt.Fprintf(w, "%s\n%s\n", StreamInf(media.VariantInfoFor(s)), rel)
	return err
}

// RenderMaster renders a full master manifest, one entry per stream in order.
func RenderMaster(masterPath string, streams []*media.VideoStream, layout Layout) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header + "\n")
	dir := filepath.Dir(masterPath)
	for _, s := range streams {
		if err := writeEntry(&buf, dir, s, layout); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// WriteMaster replaces the master manifest with a full build over streams.
func WriteMaster(masterPath string, streams []*media.VideoStream, layout Layout) error {
	data, err := RenderMaster(masterPath, streams, layout)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(masterPath), 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	return writeAtomic(masterPath, data)
}

// Size returns the current manifest size, or -1 when it does not exist.
// The value is suitable for a later Truncate.
func Size(masterPath string) (int64, error) {
	info, err := os.Stat(masterPath)
	if errors.Is(err, os.ErrNotExist) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// AppendVariant appends exactly one entry to the master manifest. A missing
// manifest is created with a header first.
func AppendVariant(masterPath string, s *media.VideoStream, layout Layout) error {
	if err := os.MkdirAll(filepath.Dir(masterPath), 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	// #nosec G304 - path is derived from the video id by the resolver
	f, err := os.OpenFile(masterPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open master manifest: %w", err)
	}

	var buf bytes.Buffer
	prefix, err := appendPrefix(masterPath)
	if err != nil {
		_ = f.Close()
		return err
	}
	buf.WriteString(prefix)
	if err := writeEntry(&buf, filepath.Dir(masterPath), s, layout); err != nil {
		_ = f.Close()
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append master manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync master manifest: %w", err)
	}
	return f.Close()
}

// appendPrefix returns what must precede a new entry: a header for an empty
// file, a newline when the last line is unterminated.
func appendPrefix(masterPath string) (string, error) {
	// #nosec G304
	f, err := os.Open(masterPath)
	if err != nil {
		return "", fmt.Errorf("open master manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return Header + "\n", nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return "", fmt.Errorf("read master manifest: %w", err)
	}
	if last[0] != '\n' {
		return "\n", nil
	}
	return "", nil
}

// Truncate restores the manifest to a size captured by Size. A negative size
// removes the file.
func Truncate(masterPath string, size int64) error {
	if size < 0 {
		err := os.Remove(masterPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.Truncate(masterPath, size)
}

// Entry is one variant declared in a master manifest.
type Entry struct {
	Bandwidth int
	Width     int
	Height    int
	URI       string
}

// ParseMaster returns the variant entries of a master manifest.
func ParseMaster(content string) ([]Entry, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != Header {
		return nil, fmt.Errorf("missing %s header", Header)
	}

	var (
		entries []Entry
		pending *Entry
	)
	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, streamInfTag):
			e, err := parseStreamInf(strings.TrimPrefix(line, streamInfTag))
			if err != nil {
				return nil, err
			}
			pending = &e
		case strings.HasPrefix(line, "#"):
			continue
		default:
			if pending == nil {
				return nil, fmt.Errorf("uri %q without stream info", line)
			}
			pending.URI = line
			entries = append(entries, *pending)
			pending = nil
		}
	}
	if pending != nil {
		return nil, errors.New("stream info without uri")
	}
	return entries, nil
}

func parseStreamInf(attrs string) (Entry, error) {
	var e Entry
	for _, kv := range strings.Split(attrs, ",") {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case "BANDWIDTH":
			if _, err := fmt.Sscanf(val, "%d", &e.Bandwidth); err != nil {
				return e, fmt.Errorf("invalid BANDWIDTH %q", val)
			}
		case "RESOLUTION":
			if _, err := fmt.Sscanf(val, "%dx%d", &e.Width, &e.Height); err != nil {
				return e, fmt.Errorf("invalid RESOLUTION %q", val)
			}
		}
	}
	return e, nil
}
