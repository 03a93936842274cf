package repository

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochel/genealogy/models"
)

func sampleRelative() models.Relative {
	return models.Relative{
		ID:           "anna-1901",
		Name:         "Anna Lochel",
		Sex:          models.SexFemale,
		Father:       "karl-1870",
		Mother:       "marie-1875",
		Spouse:       []string{"otto-1899"},
		Birthday:     "3.4.1901",
		Birthplace:   "Köln",
		WeddingDay:   "1.6.1925",
		WeddingPlace: "Bonn",
		DayOfDeath:   "12.12.1980",
		PlaceOfDeath: "Bonn",
		Profession:   "Teacher",
		Image:        "anna.jpg",
		Body:         "Anna grew up in Köln.\n",
	}
}

func TestEncodeRelativeFormat(t *testing.T) {
	rel := sampleRelative()
	rel.Spouse = []string{"a", "b"}

	want := `---
"hash":         "anna-1901",
"name":         "Anna Lochel",
"sex":          "female",
"father":       "karl-1870",
"mother":       "marie-1875",
"spouse":       ["a", "b"],
"birthday":     "3.4.1901",
"birthplace":   "Köln",
"weddingDay":   "1.6.1925",
"weddingPlace": "Bonn",
"dayOfDeath":   "12.12.1980",
"placeOfDeath": "Bonn",
"profession":   "Teacher",
"image":        "anna.jpg"
---
Anna grew up in Köln.
`
	assert.Equal(t, want, string(EncodeRelative(&rel)))
}

func TestEncodeRelativeEmptySpouse(t *testing.T) {
	rel := models.EmptyRelative("x")
	assert.Contains(t, string(EncodeRelative(&rel)), "\"spouse\":       [],\n")
}

func TestRelativeRoundTrip(t *testing.T) {
	base := sampleRelative()

	cases := map[string]func(r *models.Relative){
		"no spouse":    func(r *models.Relative) { r.Spouse = []string{} },
		"one spouse":   func(r *models.Relative) {},
		"three spouse": func(r *models.Relative) { r.Spouse = []string{"a", "b", "c"} },
		"all optional fields empty": func(r *models.Relative) {
			*r = models.Relative{ID: "lonely", Spouse: []string{}}
		},
		"quotes and backslashes": func(r *models.Relative) {
			r.Name = `Johann "Hans" Back\slash`
			r.Profession = "Bäcker & Konditor <Meister>"
		},
		"body containing the delimiter": func(r *models.Relative) {
			r.Body = "first\n---\nsecond\n---\nthird"
		},
		"empty body": func(r *models.Relative) { r.Body = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rel := base.Clone()
			mutate(&rel)

			got, diags, err := DecodeRelative(string(EncodeRelative(&rel)))
			require.NoError(t, err)
			assert.Empty(t, diags)
			if diff := cmp.Diff(rel, *got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeRelativeWithoutMetadata(t *testing.T) {
	for _, text := range []string{"", "just a story", "---\nonly one delimiter"} {
		rel, diags, err := DecodeRelative(text)
		require.NoError(t, err)
		assert.Empty(t, diags)
		assert.Equal(t, text, rel.Body)
		assert.Empty(t, rel.ID)
		assert.Equal(t, []string{}, rel.Spouse)
	}
}

func TestDecodeRelativeMissingKeysDefault(t *testing.T) {
	rel, diags, err := DecodeRelative("---\n\"hash\": \"a\",\n\"name\": \"A\"\n---\nbody")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, "a", rel.ID)
	assert.Equal(t, "A", rel.Name)
	assert.Equal(t, models.SexUnknown, rel.Sex)
	assert.Equal(t, []string{}, rel.Spouse)
	assert.Equal(t, "body", rel.Body)
}

func TestDecodeRelativeMalformed(t *testing.T) {
	_, _, err := DecodeRelative("---\n\"hash\": \"a\",,\n---\n")
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Empty(t, decodeErr.Path)
}

func TestDecodeRelativeFieldDiagnostics(t *testing.T) {
	text := "---\n" +
		"\"hash\":   \"a\",\n" +
		"\"name\":   42,\n" +
		"\"sex\":    \"robot\",\n" +
		"\"spouse\": \"b\",\n" +
		"\"nickname\": \"Al\"\n" +
		"---\n"

	rel, diags, err := DecodeRelative(text)
	require.NoError(t, err)
	assert.Equal(t, "a", rel.ID)
	assert.Empty(t, rel.Name)
	assert.Equal(t, models.SexUnknown, rel.Sex)
	assert.Equal(t, []string{}, rel.Spouse)

	want := Diagnostics{
		{Field: "name", Problem: "expected a string"},
		{Field: "nickname", Problem: "unknown field"},
		{Field: "sex", Problem: `unknown value "robot"`},
		{Field: "spouse", Problem: "expected a list of strings"},
	}
	assert.Equal(t, want, diags)
}

func TestIsRecordFile(t *testing.T) {
	assert.True(t, IsRecordFile("/data/anna.md"))
	assert.True(t, IsRecordFile("nested/dir/karl-1870.md"))
	assert.False(t, IsRecordFile("/data/.relative-123.tmp"))
	assert.False(t, IsRecordFile("/data/.hidden.md"))
	assert.False(t, IsRecordFile("/data/anna.txt"))
	assert.False(t, IsRecordFile("/data/images/anna.jpg"))
}
