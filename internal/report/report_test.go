package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/registry"
)

func sampleStatus() Status {
	snap := migrate.Snapshot{
		State:     migrate.Deactivated,
		HasTarget: true,
		URIs:      []string{"maithemewp/mai-theme-engine", "wpackagist/genesis"},
	}
	components := []*registry.Component{
		{ID: "mai-pro-engine/mai-pro-engine.php", Name: "Mai Pro Engine", Active: false},
		{ID: "mai-theme-engine/mai-theme-engine.php", Name: "Mai Theme Engine", Version: "1.0.0", Active: true},
	}
	history := []registry.Transition{
		{From: "migrated", To: "deactivated", At: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	return NewStatus("/srv/site/includes/dependencies/wp-dependencies.json", snap, components, history)
}

func TestEncode(t *testing.T) {
	st := sampleStatus()

	tests := []struct {
		format Format
		decode func([]byte, *Status) error
	}{
		{FormatJSON, func(b []byte, s *Status) error { return json.Unmarshal(b, s) }},
		{FormatYAML, func(b []byte, s *Status) error { return yaml.Unmarshal(b, s) }},
		{FormatTOML, func(b []byte, s *Status) error { return toml.Unmarshal(b, s) }},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.format, st); err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			if !strings.Contains(buf.String(), "deactivated") {
				t.Errorf("output missing state: %s", buf.String())
			}

			var got Status
			if err := tt.decode(buf.Bytes(), &got); err != nil {
				t.Fatalf("decoding %s output failed: %v\n%s", tt.format, err, buf.String())
			}
			if got.State != "deactivated" || !got.Migrated || len(got.Components) != 2 {
				t.Errorf("decoded = %+v", got)
			}
			if len(got.Journal) != 1 || !got.Journal[0].At.Equal(st.Journal[0].At) {
				t.Errorf("journal = %+v", got.Journal)
			}
		})
	}
}

func TestEncode_NoEscapedSlashes(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, sampleStatus()); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if strings.Contains(buf.String(), `\/`) {
		t.Errorf("json output escapes slashes: %s", buf.String())
	}
}

func TestNewStatus_Error(t *testing.T) {
	st := NewStatus("x.json", migrate.Snapshot{State: migrate.Unknown, Err: errors.New("boom")}, nil, nil)
	if st.Error != "boom" || st.State != "unknown" {
		t.Errorf("status = %+v", st)
	}
	if st.Components == nil {
		t.Error("Components should encode as an empty list")
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"text", "JSON", "yaml", "toml"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
	if err := Encode(&bytes.Buffer{}, FormatText, Status{}); err == nil {
		t.Error("expected error encoding text")
	}
}
