// Package descriptor reads and writes the wp-dependencies.json descriptor file.
//
// A descriptor is a JSON array of dependency records. Older themes shipped the
// same records as a JSON object keyed by arbitrary strings; that form is
// accepted on read and normalized to an array, in document key order, on write.
//
// Records that are not touched by a caller are carried through as the raw JSON
// they were read as, so unknown fields and key order survive a rewrite.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// HostGitHub is the only host the installer registers dependencies against.
const HostGitHub = "github"

// Record is a single dependency entry in the descriptor file.
// Field order matches the order the installer has always written them in.
type Record struct {
	Name     string  `json:"name"`
	Host     string  `json:"host"`
	Slug     string  `json:"slug"`
	URI      string  `json:"uri"`
	Branch   string  `json:"branch"`
	Optional bool    `json:"optional"`
	Token    *string `json:"token"`
}

// Validate checks that the record carries enough to be installed.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.URI) == "" {
		return fmt.Errorf("uri is required")
	}
	if strings.TrimSpace(r.Slug) == "" {
		return fmt.Errorf("slug is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// MarshalCompact encodes the record without HTML escaping or a trailing newline.
func (r *Record) MarshalCompact() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", r.URI, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
