// Package report renders the installer status in machine-readable formats.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/registry"
)

// Format is an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, yaml or toml)", s)
	}
}

// Component is one registry row in a report.
type Component struct {
	ID      string `json:"id" yaml:"id" toml:"id"`
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Active  bool   `json:"active" yaml:"active" toml:"active"`
}

// Transition is one journal entry in a report.
type Transition struct {
	From   string    `json:"from" yaml:"from" toml:"from"`
	To     string    `json:"to" yaml:"to" toml:"to"`
	Detail string    `json:"detail,omitempty" yaml:"detail,omitempty" toml:"detail,omitempty"`
	At     time.Time `json:"at" yaml:"at" toml:"at"`
}

// Status is the report printed by `mei status`.
type Status struct {
	Descriptor string       `json:"descriptor" yaml:"descriptor" toml:"descriptor"`
	State      string       `json:"state" yaml:"state" toml:"state"`
	Migrated   bool         `json:"migrated" yaml:"migrated" toml:"migrated"`
	HasLegacy  bool         `json:"has_legacy" yaml:"has_legacy" toml:"has_legacy"`
	URIs       []string     `json:"uris" yaml:"uris" toml:"uris"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Components []Component  `json:"components" yaml:"components" toml:"components"`
	Journal    []Transition `json:"journal,omitempty" yaml:"journal,omitempty" toml:"journal,omitempty"`
}

// NewStatus assembles a report from an inspection and the registry contents.
func NewStatus(path string, snap migrate.Snapshot, components []*registry.Component, history []registry.Transition) Status {
	st := Status{
		Descriptor: path,
		State:      snap.State.String(),
		Migrated:   snap.HasTarget,
		HasLegacy:  snap.HasLegacy,
		URIs:       append([]string{}, snap.URIs...),
		Components: []Component{},
	}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}
	for _, c := range components {
		st.Components = append(st.Components, Component{ID: c.ID, Name: c.Name, Version: c.Version, Active: c.Active})
	}
	for _, tr := range history {
		st.Journal = append(st.Journal, Transition{From: tr.From, To: tr.To, Detail: tr.Detail, At: tr.At})
	}
	return st
}

// Encode writes st to w. FormatText is handled by the caller.
func Encode(w io.Writer, format Format, st Status) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(st)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(st); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("format %q cannot be encoded", format)
	}
}
