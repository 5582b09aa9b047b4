// Package keystore resolves the set of valid API keys at startup.
//
// Three sources are supported: a SQLite database with a table
// api_keys(key TEXT), a flat file with comma- or newline-separated keys,
// and a static list. Exactly one source is selected at startup, by
// precedence database > file > static; the rest of the proxy only ever
// sees the resolved KeySet and never branches on source type.
package keystore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ollama-proxy-go/internal/config"
)

// KeySet is the ordered collection of valid API keys, resolved once at
// startup and read-only afterwards.
type KeySet []string

// Contains reports whether candidate exactly matches one of the keys.
// Matching is case-sensitive with no normalization; each key is compared
// in constant time. An empty set matches nothing.
func (ks KeySet) Contains(candidate string) bool {
	match := 0
	for _, k := range ks {
		match |= subtle.ConstantTimeCompare([]byte(candidate), []byte(k))
	}
	return match == 1
}

// Source resolves the ordered list of valid API keys.
type Source interface {
	// Resolve returns the keys in source order.
	Resolve(ctx context.Context) ([]string, error)
	// Name identifies the source kind in logs.
	Name() string
}

// Static serves a fixed key list, e.g. from the API_KEYS environment
// variable or the auth.keys config entry.
type Static struct {
	keys []string
}

// NewStatic builds a Static source, trimming whitespace and dropping empty
// entries.
func NewStatic(keys []string) *Static {
	return &Static{keys: normalize(keys)}
}

// Resolve returns the normalized key list.
func (s *Static) Resolve(context.Context) ([]string, error) {
	return s.keys, nil
}

// Name implements Source.
func (s *Static) Name() string { return "static" }

// File reads keys from a flat file. Keys may be separated by commas,
// newlines or carriage returns; surrounding whitespace is trimmed and empty
// entries are dropped.
type File struct {
	path string
}

// NewFile builds a File source for the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Resolve reads and parses the key file.
func (f *File) Resolve(context.Context) ([]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", f.path, err)
	}
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	return normalize(fields), nil
}

// Name implements Source.
func (f *File) Name() string { return "file" }

// FromConfig selects the key source by precedence: database > file > static
// list.
func FromConfig(cfg *config.Config) Source {
	switch {
	case cfg.Auth.KeysDB != "":
		return NewSQLite(cfg.Auth.KeysDB)
	case cfg.Auth.KeysFile != "":
		return NewFile(cfg.Auth.KeysFile)
	default:
		return NewStatic(cfg.Auth.Keys)
	}
}

// Resolve runs the selected source once and logs what was loaded. A
// resolution failure is fatal at startup, never at request time. An empty
// set is allowed but leaves the proxy rejecting every request.
func Resolve(src Source, logger *slog.Logger) (KeySet, error) {
	keys, err := src.Resolve(context.Background())
	if err != nil {
		return nil, fmt.Errorf("keystore: resolve %s source: %w", src.Name(), err)
	}
	if len(keys) == 0 {
		logger.Warn("no API keys configured; every request will be rejected",
			"source", src.Name(),
		)
	} else {
		logger.Info("API keys loaded",
			"source", src.Name(),
			"count", len(keys),
		)
	}
	return KeySet(keys), nil
}

func normalize(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if k := strings.TrimSpace(item); k != "" {
			out = append(out, k)
		}
	}
	return out
}
