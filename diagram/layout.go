// Package diagram lays out the one-generation family diagram of a relative and
// turns it into TeX source for the external typesetting toolchain.
package diagram

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
)

// Fixed diagram coordinates, in centimetres.
const (
	subjectX, subjectY     = 7.5, 13.0
	fatherX, motherX       = 5.0, 10.0
	parentsY               = 26.0
	parentHubX, parentHubY = 7.5, 19.5
	spouseX0, spouseDX     = 12.5, 5.0
	childX0, childDX       = 10.0, 5.0
	childY                 = 0.0
	pairHubX0, pairHubDX   = 10.0, 5.0
	pairHubY0, pairHubDY   = 6.5, 0.5
)

// Role is the position a relative takes in a diagram.
type Role string

const (
	RoleFather  Role = "father"
	RoleMother  Role = "mother"
	RoleSubject Role = "subject"
	RoleSpouse  Role = "spouse"
	RoleChild   Role = "child"
)

// Point is a diagram coordinate in centimetres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is one caption line such as birth or marriage. Either half may be empty.
type Event struct {
	Kind  string `json:"kind"`
	Date  string `json:"date,omitempty"`
	Place string `json:"place,omitempty"`
}

// Caption is the text block printed under a portrait.
type Caption struct {
	Name       string  `json:"name"`
	Events     []Event `json:"events,omitempty"`
	Profession string  `json:"profession,omitempty"`
}

const (
	EventBorn    = "born"
	EventMarried = "married"
	EventDied    = "died"
)

// Node is a placed relative.
type Node struct {
	Name       string     `json:"name"`
	RelativeID string     `json:"relative_id"`
	Role       Role       `json:"role"`
	Position   Point      `json:"position"`
	Sex        models.Sex `json:"sex"`
	Image      string     `json:"image"`
	Caption    Caption    `json:"caption"`
}

// Hub is the junction point that a couple and their children connect to.
type Hub struct {
	Name     string `json:"name"`
	Position Point  `json:"position"`
}

// Connector is an orthogonal line from a node to a hub.
type Connector struct {
	From string `json:"from"`
	Hub  string `json:"hub"`
}

// Result is a complete layout. Connectors are grouped by hub in hub order.
type Result struct {
	Subject    string      `json:"subject"`
	Nodes      []Node      `json:"nodes"`
	Hubs       []Hub       `json:"hubs"`
	Connectors []Connector `json:"connectors"`
	Warnings   []string    `json:"warnings"`
}

// texName encodes id using ASCII letters and digits only. Every other rune,
// and the escape letter Z itself, becomes Z<hex code point>Z, so distinct ids
// never share a name and TikZ never sees a dot or a separator inside one.
func texName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r == 'Z':
			b.WriteString("Z5aZ")
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "Z%xZ", r)
		}
	}
	return b.String()
}

// NodeName is the TeX node name of a relative.
func NodeName(id string) string { return "id-" + texName(id) }

// HubName is the TeX coordinate name of the hub shared by a and b. The pair is
// unordered and empty ids are dropped.
func HubName(a, b string) string {
	ids := make([]string, 0, 2)
	for _, id := range []string{a, b} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for i, id := range ids {
		ids[i] = texName(id)
	}
	return "hub-" + strings.Join(ids, "-")
}

// CaptionFor builds the caption of r. Event lines are included only when a
// date or a place is known.
func CaptionFor(r *models.Relative) Caption {
	c := Caption{Name: r.Name, Profession: r.Profession}
	for _, e := range []Event{
		{Kind: EventBorn, Date: r.Birthday, Place: r.Birthplace},
		{Kind: EventMarried, Date: r.WeddingDay, Place: r.WeddingPlace},
		{Kind: EventDied, Date: r.DayOfDeath, Place: r.PlaceOfDeath},
	} {
		if e.Date != "" || e.Place != "" {
			c.Events = append(c.Events, e)
		}
	}
	return c
}

type builder struct {
	result    *Result
	placed    map[string]bool
	hubs      map[string]bool
	links     map[string][]Connector
	nextIndex int
}

func (b *builder) place(r *models.Relative, role Role, x, y float64) bool {
	if b.placed[r.ID] {
		b.warnf("%s appears more than once in the diagram, skipping it as %s", r.ID, role)
		return false
	}
	b.placed[r.ID] = true
	b.result.Nodes = append(b.result.Nodes, Node{
		Name:       NodeName(r.ID),
		RelativeID: r.ID,
		Role:       role,
		Position:   Point{X: x, Y: y},
		Sex:        r.Sex,
		Image:      r.Image,
		Caption:    CaptionFor(r),
	})
	return true
}

func (b *builder) hub(name string, x, y float64) {
	if b.hubs[name] {
		return
	}
	b.hubs[name] = true
	b.result.Hubs = append(b.result.Hubs, Hub{Name: name, Position: Point{X: x, Y: y}})
}

// pairHub adds the next hub of the spouse row.
func (b *builder) pairHub(name string) {
	i := float64(b.nextIndex)
	b.nextIndex++
	b.hub(name, pairHubX0+pairHubDX*i, pairHubY0+pairHubDY*i)
}

func (b *builder) connect(nodeID, hub string) {
	b.links[hub] = append(b.links[hub], Connector{From: NodeName(nodeID), Hub: hub})
}

func (b *builder) warnf(format string, args ...any) {
	b.result.Warnings = append(b.result.Warnings, fmt.Sprintf(format, args...))
}

// Layout places the subject, its parents, spouses and children. It is a pure
// function of the record set. Unresolved references are skipped with a warning.
func Layout(subjectID string, relatives []models.Relative) (*Result, error) {
	subject, ok := repository.Lookup(relatives, subjectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, subjectID)
	}

	b := &builder{
		result: &Result{
			Subject:    subjectID,
			Nodes:      []Node{},
			Hubs:       []Hub{},
			Connectors: []Connector{},
			Warnings:   []string{},
		},
		placed: make(map[string]bool),
		hubs:   make(map[string]bool),
		links:  make(map[string][]Connector),
	}

	father := b.resolve(relatives, subject.Father, "father")
	mother := b.resolve(relatives, subject.Mother, "mother")
	if father != nil {
		b.place(father, RoleFather, fatherX, parentsY)
	}
	if mother != nil {
		b.place(mother, RoleMother, motherX, parentsY)
	}
	b.place(subject, RoleSubject, subjectX, subjectY)

	var spouses []*models.Relative
	for _, id := range subject.Spouse {
		if id == "" {
			b.warnf("%s contains an empty spouse entry", subjectID)
			continue
		}
		sp := b.resolve(relatives, id, "spouse")
		if sp == nil {
			continue
		}
		x := spouseX0 + spouseDX*float64(len(spouses))
		if b.place(sp, RoleSpouse, x, subjectY) {
			spouses = append(spouses, sp)
		}
	}

	for _, sp := range spouses {
		name := HubName(subjectID, sp.ID)
		b.pairHub(name)
		b.connect(subjectID, name)
		b.connect(sp.ID, name)
	}

	childIndex := 0
	for _, childID := range repository.Children(subjectID, relatives) {
		child, _ := repository.Lookup(relatives, childID)
		x := childX0 + childDX*float64(childIndex)
		if !b.place(child, RoleChild, x, childY) {
			continue
		}
		childIndex++

		name := HubName(child.Father, child.Mother)
		if !b.hubs[name] {
			// the other parent is not a listed spouse
			b.pairHub(name)
			b.connect(subjectID, name)
		}
		b.connect(child.ID, name)
	}

	if father != nil || mother != nil {
		var fatherID, motherID string
		if father != nil {
			fatherID = father.ID
		}
		if mother != nil {
			motherID = mother.ID
		}
		name := HubName(fatherID, motherID)
		b.hub(name, parentHubX, parentHubY)
		if father != nil {
			b.connect(father.ID, name)
		}
		if mother != nil {
			b.connect(mother.ID, name)
		}
		b.connect(subjectID, name)
	}

	for _, h := range b.result.Hubs {
		b.result.Connectors = append(b.result.Connectors, b.links[h.Name]...)
	}
	return b.result, nil
}

func (b *builder) resolve(relatives []models.Relative, id, relation string) *models.Relative {
	if id == "" {
		return nil
	}
	r, ok := repository.Lookup(relatives, id)
	if !ok {
		b.warnf("%s has an invalid cross-reference to their %s %s", b.result.Subject, relation, id)
		return nil
	}
	return r
}

// ColorFor maps a sex to the node color of theme.
func ColorFor(sex models.Sex, theme Theme) string {
	switch sex {
	case models.SexMale:
		return theme.MaleColor
	case models.SexFemale:
		return theme.FemaleColor
	default:
		return theme.UnknownColor
	}
}
