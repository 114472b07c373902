package seo

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"almaseo-go/internal/model"
)

// TrackedField maps a canonical field name to the meta key the content
// layer stores it under. Fields whose name ends in "_json" hold JSON.
type TrackedField struct {
	Name    string
	MetaKey string
}

// DefaultTrackedFields are captured when no field list is configured.
var DefaultTrackedFields = []TrackedField{
	{Name: "title", MetaKey: "_almaseo_title"},
	{Name: "description", MetaKey: "_almaseo_description"},
	{Name: "focus_keyword", MetaKey: "_almaseo_focus_keyword"},
	{Name: "schema_json", MetaKey: "_almaseo_schema_json"},
}

// IsJSONField reports whether the named field is JSON-valued.
func IsJSONField(name string) bool {
	return strings.HasSuffix(name, "_json")
}

// NormalizeFields canonicalizes field values so equal content compares equal.
// JSON fields are re-serialized minified with sorted keys (plain-trimmed if
// unparseable); other fields are trimmed with inner whitespace runs collapsed.
func NormalizeFields(fields model.Fields) model.Fields {
	out := make(model.Fields, len(fields))
	for name, value := range fields {
		if IsJSONField(name) {
			out[name] = normalizeJSONValue(value)
			continue
		}
		out[name] = strings.Join(strings.Fields(value), " ")
	}
	return out
}

func normalizeJSONValue(raw string) string {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return strings.TrimSpace(raw)
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return strings.TrimSpace(raw)
	}

	out, err := canonicalJSON(parsed)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return out
}

// canonicalJSON encodes v with sorted map keys and without HTML escaping.
func canonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// EncodeFields returns the canonical JSON of normalized fields and its digest.
// The digest is for change detection only.
func EncodeFields(normalized model.Fields) (doc string, digest string, err error) {
	if normalized == nil {
		normalized = model.Fields{}
	}
	doc, err = canonicalJSON(map[string]string(normalized))
	if err != nil {
		return "", "", fmt.Errorf("encoding fields: %w", err)
	}
	sum := blake3.Sum256([]byte(doc))
	return doc, hex.EncodeToString(sum[:]), nil
}

// HashFields returns the digest of normalized fields.
func HashFields(normalized model.Fields) (string, error) {
	_, digest, err := EncodeFields(normalized)
	return digest, err
}

// DecodeFields parses a snapshot's stored JSON.
func DecodeFields(snapshotJSON string) (model.Fields, error) {
	fields := model.Fields{}
	if err := json.Unmarshal([]byte(snapshotJSON), &fields); err != nil {
		return nil, fmt.Errorf("decoding snapshot fields: %w", err)
	}
	return fields, nil
}
