package models

import (
	"fmt"
	"strings"
)

// Sex is the stored sex of a relative. The empty string means unknown.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = ""
)

// IsValid reports whether s is one of the stored enum values.
func (s Sex) IsValid() bool {
	switch s {
	case SexMale, SexFemale, SexUnknown:
		return true
	default:
		return false
	}
}

// ParseSex reads a sex as entered in a form. "unknown" and the empty string
// both mean SexUnknown.
func ParseSex(s string) (Sex, error) {
	v := Sex(strings.ToLower(strings.TrimSpace(s)))
	if v == "unknown" {
		return SexUnknown, nil
	}
	if !v.IsValid() {
		return "", fmt.Errorf("unknown sex %q", s)
	}
	return v, nil
}

// DefaultImage is the portrait used for relatives without an uploaded image.
const DefaultImage = "unknown.png"

// Relative is one person record of the family store. It corresponds to a single
// markdown file named after its ID.
type Relative struct {
	ID           string   `json:"hash"`
	Name         string   `json:"name"`
	Sex          Sex      `json:"sex"`
	Father       string   `json:"father"`
	Mother       string   `json:"mother"`
	Spouse       []string `json:"spouse"`
	Birthday     string   `json:"birthday"`
	Birthplace   string   `json:"birthplace"`
	WeddingDay   string   `json:"weddingDay"`
	WeddingPlace string   `json:"weddingPlace"`
	DayOfDeath   string   `json:"dayOfDeath"`
	PlaceOfDeath string   `json:"placeOfDeath"`
	Profession   string   `json:"profession"`
	Image        string   `json:"image"`
	Body         string   `json:"body"`
}

// EmptyRelative returns the blank record used for ids that do not exist yet.
func EmptyRelative(id string) Relative {
	return Relative{
		ID:     id,
		Spouse: []string{},
		Image:  DefaultImage,
	}
}

// HasParent reports whether id is the father or mother of r.
func (r *Relative) HasParent(id string) bool {
	return id != "" && (r.Father == id || r.Mother == id)
}

// HasSpouse reports whether id is listed as a spouse of r.
func (r *Relative) HasSpouse(id string) bool {
	for _, s := range r.Spouse {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of r.
func (r Relative) Clone() Relative {
	c := r
	c.Spouse = append([]string{}, r.Spouse...)
	return c
}

// RelativePage is the display model handed to the page layer: the record plus
// everything derived from the rest of the store.
type RelativePage struct {
	Relative
	Exists     bool              `json:"exists"`
	Children   []string          `json:"children"`
	BodyHTML   string            `json:"body_html"`
	References map[string]string `json:"references"` // id -> display name for father/mother/spouse/children
}
