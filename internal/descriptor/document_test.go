package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testRecord() Record {
	return Record{
		Name:   "Mai Theme Engine",
		Host:   HostGitHub,
		Slug:   "mai-theme-engine/mai-theme-engine.php",
		URI:    "maithemewp/mai-theme-engine",
		Branch: "master",
	}
}

func TestParse_Forms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantForm Form
		wantLen  int
		wantURIs []string
	}{
		{name: "empty content", input: "", wantForm: FormEmpty},
		{name: "whitespace only", input: " \n\t", wantForm: FormEmpty},
		{name: "null", input: "null", wantForm: FormEmpty},
		{name: "empty array", input: "[]", wantForm: FormEmpty},
		{name: "empty object", input: "{}", wantForm: FormEmpty},
		{
			name:     "array",
			input:    `[{"uri":"a/b"},{"uri":"c/d","name":"x"}]`,
			wantForm: FormArray,
			wantLen:  2,
			wantURIs: []string{"a/b", "c/d"},
		},
		{
			name:     "legacy object keeps key order",
			input:    `{"zeta":{"uri":"z/z"},"alpha":{"uri":"a/a"}}`,
			wantForm: FormObject,
			wantLen:  2,
			wantURIs: []string{"z/z", "a/a"},
		},
		{
			name:     "non-object and uri-less records are kept but have no uri",
			input:    `["plain",{"name":"no uri"},{"uri":42},{"uri":null},{"uri":"x/y"}]`,
			wantForm: FormArray,
			wantLen:  5,
			wantURIs: []string{"x/y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() unexpected error = %v", err)
			}
			if doc.Form != tt.wantForm {
				t.Errorf("Form = %v, want %v", doc.Form, tt.wantForm)
			}
			if doc.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", doc.Len(), tt.wantLen)
			}
			got := doc.URIs()
			if strings.Join(got, ",") != strings.Join(tt.wantURIs, ",") {
				t.Errorf("URIs() = %v, want %v", got, tt.wantURIs)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"not json",
		`[{"uri":"a/b"}`,
		`42`,
		`"string"`,
		`true`,
		`[] []`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse([]byte(input))
			if err == nil {
				t.Fatal("expected error for malformed descriptor")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDocument_ReplaceKeepsPositionAndNeighbours(t *testing.T) {
	input := `[{"uri":"keep/one","extra":{"n":1}},{"uri":"old/engine","name":"Old"},{"uri":"keep/two"}]`
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	n, err := doc.Replace(func(uri string) bool { return uri == "old/engine" }, testRecord())
	if err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Replace() = %d, want 1", n)
	}

	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	want := `[{"uri":"keep/one","extra":{"n":1}},` +
		`{"name":"Mai Theme Engine","host":"github","slug":"mai-theme-engine/mai-theme-engine.php","uri":"maithemewp/mai-theme-engine","branch":"master","optional":false,"token":null},` +
		`{"uri":"keep/two"}]`
	if string(out) != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", out, want)
	}
}

func TestDocument_ObjectFormEncodesAsArray(t *testing.T) {
	doc, err := Parse([]byte(`{"b":{"uri":"b/b"},"a":{"uri":"a/a"}}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if string(out) != `[{"uri":"b/b"},{"uri":"a/a"}]` {
		t.Errorf("Encode() = %s", out)
	}
}

func TestDocument_AppendToEmpty(t *testing.T) {
	doc, err := Parse([]byte("[]"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if err := doc.Append(testRecord()); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if doc.Form != FormArray {
		t.Errorf("Form = %v, want array", doc.Form)
	}
	if !doc.Contains("maithemewp/mai-theme-engine") {
		t.Error("expected appended record to be found")
	}
}

func TestEncode_DoesNotEscapeSlashes(t *testing.T) {
	doc, err := Parse([]byte(`[{"uri":"maiprowp\/mai-pro-engine","path":"a\\\/b","html":"<b>&"}]`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if !doc.Contains("maiprowp/mai-pro-engine") {
		t.Fatal("escaped slash should decode to a plain slash for matching")
	}

	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	want := `[{"uri":"maiprowp/mai-pro-engine","path":"a\\/b","html":"<b>&"}]`
	if string(out) != want {
		t.Errorf("Encode() = %s, want %s", out, want)
	}
}

func TestContains_ExactMatchOnly(t *testing.T) {
	doc, err := Parse([]byte(`[{"uri":"maiprowp/mai-pro-engine-extra"},{"uri":"MAIPROWP/mai-pro-engine"}]`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if doc.Contains("maiprowp/mai-pro-engine") {
		t.Error("Contains() matched a superstring or different case")
	}
}

func TestRecordURI_KeyMatchedExactly(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   string
		found  bool
	}{
		{"lower", `{"uri":"maiprowp/mai-pro-engine"}`, "maiprowp/mai-pro-engine", true},
		{"upper key", `{"URI":"maiprowp/mai-pro-engine","name":"Old"}`, "", false},
		{"title key", `{"Uri":"maithemewp/mai-theme-engine"}`, "", false},
		{"upper beside lower", `{"URI":"other/x","uri":"maiprowp/mai-pro-engine"}`, "maiprowp/mai-pro-engine", true},
		{"duplicate uri keys", `{"uri":"other/x","uri":"maiprowp/mai-pro-engine"}`, "maiprowp/mai-pro-engine", true},
		{"number", `{"uri":42}`, "", false},
		{"not an object", `"maiprowp/mai-pro-engine"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := recordURI([]byte(tt.record))
			if ok != tt.found || got != tt.want {
				t.Errorf("recordURI(%s) = %q, %v; want %q, %v", tt.record, got, ok, tt.want, tt.found)
			}
		})
	}
}

func TestContains_IgnoresMiscasedURIKey(t *testing.T) {
	doc, err := Parse([]byte(`[{"Uri":"maithemewp/mai-theme-engine"},{"URI":"maiprowp/mai-pro-engine"}]`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if doc.Contains("maithemewp/mai-theme-engine") || doc.Contains("maiprowp/mai-pro-engine") {
		t.Error("Contains() matched a record without a lowercase uri key")
	}
	if n := len(doc.URIs()); n != 0 {
		t.Errorf("URIs() returned %d entries, want 0", n)
	}
}

func TestParse_ObjectDuplicateKeysLastWins(t *testing.T) {
	doc, err := Parse([]byte(`{"a":{"uri":"other/x"},"b":{"uri":"b/b"},"a":{"uri":"maiprowp/mai-pro-engine"}}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if doc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", doc.Len())
	}
	if doc.Contains("other/x") {
		t.Error("earlier duplicate value survived")
	}

	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if want := `[{"uri":"maiprowp/mai-pro-engine"},{"uri":"b/b"}]`; string(out) != want {
		t.Errorf("Encode() = %s, want %s", out, want)
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Record)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *Record) {}},
		{name: "missing uri", mutate: func(r *Record) { r.URI = "" }, wantErr: true},
		{name: "missing slug", mutate: func(r *Record) { r.Slug = "" }, wantErr: true},
		{name: "missing name", mutate: func(r *Record) { r.Name = "" }, wantErr: true},
		{name: "missing host", mutate: func(r *Record) { r.Host = "" }, wantErr: true},
		{name: "blank uri", mutate: func(r *Record) { r.URI = "  " }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRecord()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() error = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wp-dependencies.json")
	if err := os.WriteFile(path, []byte("[]"), 0640); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	if err := WriteAtomic(path, []byte(`[{"uri":"a/b"}]`), 0640); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if string(data) != `[{"uri":"a/b"}]` {
		t.Errorf("content = %s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestWriteAtomic_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "wp-dependencies.json")
	if err := WriteAtomic(path, []byte("[]"), 0644); err == nil {
		t.Error("expected error when directory does not exist")
	}
}

func TestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp-dependencies.json")
	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	backupPath, err := Backup(path, []byte("[1]"), now)
	if err != nil {
		t.Fatalf("Backup() failed: %v", err)
	}
	if backupPath != path+".backup.20240301-123045" {
		t.Errorf("backupPath = %s", backupPath)
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if string(data) != "[1]" {
		t.Errorf("backup content = %s", data)
	}
}

func TestRead_NotExist(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read() error = %v, want ErrNotExist", err)
	}
}

func TestHash(t *testing.T) {
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Error("different content should hash differently")
	}
	if len(Hash(nil)) != 64 {
		t.Errorf("Hash() length = %d, want 64", len(Hash(nil)))
	}
}
