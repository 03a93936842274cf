package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lochel/genealogy/models"
)

const (
	// RecordExtension is the file extension of every relative record.
	RecordExtension = ".md"

	recordDelimiter = "---\n"
)

// DecodeError is returned when the metadata block of a record is not a
// well-formed key/value object. Bulk scans skip such records.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to decode relative %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to decode relative: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FieldDiagnostic describes a metadata field that was present but could not be
// used as-is. The field falls back to its zero value.
type FieldDiagnostic struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

func (d FieldDiagnostic) String() string {
	return d.Field + ": " + d.Problem
}

// Diagnostics is the list of per-field problems found while decoding one record.
type Diagnostics []FieldDiagnostic

// recordKeys is the fixed order in which metadata is written.
var recordKeys = []string{
	"hash", "name", "sex", "father", "mother", "spouse", "birthday", "birthplace",
	"weddingDay", "weddingPlace", "dayOfDeath", "placeOfDeath", "profession", "image",
}

// IsRecordFile reports whether name is a record file. Hidden files, including
// the temporary files written by the store, are not records.
func IsRecordFile(name string) bool {
	base := filepath.Base(name)
	return filepath.Ext(base) == RecordExtension && !strings.HasPrefix(base, ".")
}

func stringFields(rel *models.Relative) map[string]*string {
	return map[string]*string{
		"hash":         &rel.ID,
		"name":         &rel.Name,
		"father":       &rel.Father,
		"mother":       &rel.Mother,
		"birthday":     &rel.Birthday,
		"birthplace":   &rel.Birthplace,
		"weddingDay":   &rel.WeddingDay,
		"weddingPlace": &rel.WeddingPlace,
		"dayOfDeath":   &rel.DayOfDeath,
		"placeOfDeath": &rel.PlaceOfDeath,
		"profession":   &rel.Profession,
		"image":        &rel.Image,
	}
}

// DecodeRelative parses the textual record format. Text with fewer than two
// delimiter lines is treated entirely as body. Missing keys default to empty
// values; keys with unusable values are reported in the returned Diagnostics.
func DecodeRelative(text string) (*models.Relative, Diagnostics, error) {
	rel := &models.Relative{Spouse: []string{}}

	parts := strings.SplitN(text, recordDelimiter, 3)
	if len(parts) < 3 {
		rel.Body = text
		return rel, nil, nil
	}
	rel.Body = parts[2]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte("{"+parts[1]+"}"), &fields); err != nil {
		return nil, nil, &DecodeError{Err: err}
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	targets := stringFields(rel)
	var diags Diagnostics
	for _, key := range keys {
		raw := fields[key]
		switch key {
		case "spouse":
			var spouses []string
			if err := json.Unmarshal(raw, &spouses); err != nil {
				diags = append(diags, FieldDiagnostic{Field: key, Problem: "expected a list of strings"})
				continue
			}
			if spouses != nil {
				rel.Spouse = spouses
			}
		case "sex":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				diags = append(diags, FieldDiagnostic{Field: key, Problem: "expected a string"})
				continue
			}
			if !models.Sex(s).IsValid() {
				diags = append(diags, FieldDiagnostic{Field: key, Problem: fmt.Sprintf("unknown value %q", s)})
				continue
			}
			rel.Sex = models.Sex(s)
		default:
			target, ok := targets[key]
			if !ok {
				diags = append(diags, FieldDiagnostic{Field: key, Problem: "unknown field"})
				continue
			}
			if err := json.Unmarshal(raw, target); err != nil {
				diags = append(diags, FieldDiagnostic{Field: key, Problem: "expected a string"})
			}
		}
	}

	return rel, diags, nil
}

// EncodeRelative writes rel in the record format with a fixed key order.
func EncodeRelative(rel *models.Relative) []byte {
	values := map[string]string{
		"sex":    quoteValue(string(rel.Sex)),
		"spouse": spouseList(rel.Spouse),
	}
	for key, field := range stringFields(rel) {
		values[key] = quoteValue(*field)
	}

	var b bytes.Buffer
	b.WriteString(recordDelimiter)
	for i, key := range recordKeys {
		fmt.Fprintf(&b, "%-16s%s", `"`+key+`":`, values[key])
		if i < len(recordKeys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(recordDelimiter)
	b.WriteString(rel.Body)
	return b.Bytes()
}

func quoteValue(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func spouseList(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quoteValue(id)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
