package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// IgnoreFileName is read from the root of an uploaded directory.
const IgnoreFileName = ".ecorpusignore"

// defaultIgnorePatterns are applied before any ignore file.
var defaultIgnorePatterns = []string{IgnoreFileName, ".DS_Store", "Thumbs.db"}

type ignorePattern struct {
	glob     string
	anchored bool // contains '/': matched against the slash separated relative path
	dirOnly  bool // trailing '/': matches directories only
	negate   bool // leading '!': re-includes a path excluded by an earlier pattern
}

// IgnoreMatcher decides which local entries are skipped by an upload.
// The last pattern matching an entry decides; a '!' pattern re-includes it.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw pattern lines on top of the default patterns.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var p ignorePattern
		if strings.HasPrefix(raw, "!") {
			p.negate = true
			raw = raw[1:]
		}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		raw = strings.TrimPrefix(raw, "/")
		if raw == "" {
			continue
		}
		if _, err := path.Match(raw, ""); err != nil {
			continue
		}
		p.glob = raw
		p.anchored = strings.Contains(raw, "/")
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Match reports whether the entry at rel, a slash separated path relative to
// the upload root, is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	if rel == "" {
		return false
	}
	base := path.Base(rel)
	ignored := false
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		subject := base
		if p.anchored {
			subject = rel
		}
		if ok, _ := path.Match(p.glob, subject); ok {
			ignored = !p.negate
		}
	}
	return ignored
}

// ReadIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ReadIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
