package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Parse when the content is not a descriptor.
var ErrMalformed = errors.New("malformed descriptor")

// Form is the top-level JSON shape the descriptor was read in.
type Form int

const (
	// FormEmpty covers empty content, null, [] and {}.
	FormEmpty Form = iota
	// FormArray is the current array layout.
	FormArray
	// FormObject is the legacy layout keyed by arbitrary strings.
	FormObject
)

// String returns a human-readable representation of the form.
func (f Form) String() string {
	switch f {
	case FormEmpty:
		return "empty"
	case FormArray:
		return "array"
	case FormObject:
		return "object"
	default:
		return "unknown"
	}
}

// Entry is one record of a parsed descriptor.
type Entry struct {
	// Key is the object key the record was stored under in the legacy form.
	Key string
	// Raw is the record as read, or as written by Replace/Append.
	Raw json.RawMessage

	uri    string
	hasURI bool
}

// URI returns the record's uri and whether it had a string uri at all.
func (e Entry) URI() (string, bool) {
	return e.uri, e.hasURI
}

// Document is a parsed descriptor file.
type Document struct {
	Form    Form
	Entries []Entry
}

// Parse decodes descriptor content. Whitespace-only content is an empty
// document. Top-level values other than null, arrays and objects are rejected.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Document{Form: FormEmpty}, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: content is not valid JSON", ErrMalformed)
	}

	var (
		doc *Document
		err error
	)
	switch trimmed[0] {
	case 'n':
		return &Document{Form: FormEmpty}, nil
	case '[':
		doc, err = parseArray(trimmed)
	case '{':
		doc, err = parseObject(trimmed)
	default:
		return nil, fmt.Errorf("%w: top-level value must be an array or object", ErrMalformed)
	}
	if err != nil {
		return nil, err
	}
	if len(doc.Entries) == 0 {
		doc.Form = FormEmpty
	}
	return doc, nil
}

func parseArray(data []byte) (*Document, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	doc := &Document{Form: FormArray, Entries: make([]Entry, 0, len(raws))}
	for _, raw := range raws {
		doc.Entries = append(doc.Entries, newEntry("", raw))
	}
	return doc, nil
}

// parseObject walks the object token by token so the key order is kept.
func parseObject(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	doc := &Document{Form: FormObject}
	// Duplicate keys keep the position of their first occurrence and the
	// value of their last, as a decoded map would.
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected object key %v", ErrMalformed, tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: value for key %q: %v", ErrMalformed, key, err)
		}
		if i, dup := seen[key]; dup {
			doc.Entries[i] = newEntry(key, raw)
			continue
		}
		seen[key] = len(doc.Entries)
		doc.Entries = append(doc.Entries, newEntry(key, raw))
	}
	return doc, nil
}

func newEntry(key string, raw json.RawMessage) Entry {
	e := Entry{Key: key, Raw: raw}
	e.uri, e.hasURI = recordURI(raw)
	return e
}

// recordURI extracts a string "uri" member. The key is matched exactly, so
// "URI" or "Uri" members are not uris. Non-objects and non-string uris never
// match anything.
func recordURI(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}

	// A map keeps keys verbatim; struct tags would match case-insensitively.
	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return "", false
	}
	value, ok := members["uri"]
	if !ok {
		return "", false
	}
	value = bytes.TrimSpace(value)
	if len(value) == 0 || value[0] != '"' {
		return "", false
	}

	var uri string
	if err := json.Unmarshal(value, &uri); err != nil {
		return "", false
	}
	return uri, true
}

// Empty reports whether the document holds no records.
func (d *Document) Empty() bool {
	return len(d.Entries) == 0
}

// Len returns the number of records.
func (d *Document) Len() int {
	return len(d.Entries)
}

// URIs returns the string uris of all records, in order.
func (d *Document) URIs() []string {
	uris := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		if uri, ok := e.URI(); ok {
			uris = append(uris, uri)
		}
	}
	return uris
}

// Contains reports whether any record's uri is exactly uri.
func (d *Document) Contains(uri string) bool {
	for _, e := range d.Entries {
		if got, ok := e.URI(); ok && got == uri {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any record's uri is in the set.
func (d *Document) ContainsAny(uris map[string]struct{}) bool {
	for _, e := range d.Entries {
		if got, ok := e.URI(); ok {
			if _, hit := uris[got]; hit {
				return true
			}
		}
	}
	return false
}

// Replace overwrites every record whose uri satisfies match with rec,
// keeping its position. It returns the number of records replaced.
func (d *Document) Replace(match func(uri string) bool, rec Record) (int, error) {
	var raw json.RawMessage
	replaced := 0
	for i, e := range d.Entries {
		uri, ok := e.URI()
		if !ok || !match(uri) {
			continue
		}
		if raw == nil {
			data, err := rec.MarshalCompact()
			if err != nil {
				return 0, err
			}
			raw = data
		}
		d.Entries[i] = newEntry(e.Key, raw)
		replaced++
	}
	return replaced, nil
}

// Append adds rec as the last record.
func (d *Document) Append(rec Record) error {
	raw, err := rec.MarshalCompact()
	if err != nil {
		return err
	}
	d.Entries = append(d.Entries, newEntry("", raw))
	if d.Form == FormEmpty {
		d.Form = FormArray
	}
	return nil
}

// Encode serializes the records as a compact JSON array. Forward slashes are
// written literally, never as \/.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range d.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := json.Compact(&buf, e.Raw); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return unescapeSlashes(buf.Bytes()), nil
}

// unescapeSlashes rewrites \/ escapes inside JSON strings to a bare slash.
// An escaped backslash followed by a slash (\\/) is left alone.
func unescapeSlashes(src []byte) []byte {
	if !bytes.Contains(src, []byte(`\/`)) {
		return src
	}

	out := make([]byte, 0, len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			out = append(out, c)
			continue
		}

		switch c {
		case '\\':
			if i+1 < len(src) && src[i+1] == '/' {
				out = append(out, '/')
				i++
				continue
			}
			out = append(out, c)
			if i+1 < len(src) {
				out = append(out, src[i+1])
				i++
			}
		case '"':
			inString = false
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}
