// Package cache skips regeneration when a table and the package it
// lives in have not changed since the file was last generated.
//
// Inputs are identified by a blake3 fingerprint that is written into the
// generated file header. A SQLite index under the user cache directory
// records every generation so that `specialize cache ls` can list them.
package cache

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// FingerprintPrefix starts every fingerprint.
const FingerprintPrefix = "blake3:"

// headerKey introduces the fingerprint line of a generated file.
const headerKey = "// Fingerprint: "

// Fingerprint hashes the table contents, the given source files and any
// extra strings that influence the output (generator version, build tags).
// Trailing whitespace in the table is ignored.
func Fingerprint(tableData []byte, sources []string, extra ...string) (string, error) {
	h := blake3.New()
	field := func(s string) {
		_, _ = io.WriteString(h, s)
		_, _ = h.Write([]byte{0})
	}

	for _, e := range extra {
		field(e)
	}
	field(normalizeTable(tableData))

	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)
	for _, path := range sorted {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		field(filepath.Base(path))
		field(string(data))
	}
	return FingerprintPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// normalizeTable trims trailing whitespace on each line and trailing
// newlines, so that trivial edits keep the fingerprint.
func normalizeTable(data []byte) string {
	lines := strings.Split(string(data), "\n")
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(strings.TrimRight(line, " \t\r"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SourceFiles lists the non-test Go files of dir, excluding the files in
// skip (typically the generated output).
func SourceFiles(dir string, skip ...string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(skip))
	for _, s := range skip {
		if abs, err := filepath.Abs(s); err == nil {
			excluded[abs] = true
		}
	}

	var files []string
	for _, m := range matches {
		if strings.HasSuffix(m, "_test.go") {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		if !excluded[abs] {
			files = append(files, abs)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadFingerprint returns the fingerprint recorded in the header of a
// generated file, or "" if the file has none. A missing file is not an
// error.
func ReadFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i := 0; i < 5 && sc.Scan(); i++ {
		line := sc.Text()
		if strings.HasPrefix(line, headerKey) {
			return strings.TrimSpace(strings.TrimPrefix(line, headerKey)), nil
		}
		if strings.HasPrefix(line, "package ") {
			break
		}
	}
	return "", sc.Err()
}
