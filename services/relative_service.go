package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/utils"
)

// LatestCount is the number of relatives shown on the landing page.
const LatestCount = 6

var (
	// ErrEditRejected is returned when an edit references relatives that do
	// not exist. Nothing has been written.
	ErrEditRejected = errors.New("edit rejected")
	// ErrInvalidInput is returned for form values that can never be stored.
	ErrInvalidInput = errors.New("invalid input")
)

// DiagramQueue schedules diagram regeneration. It may be nil.
type DiagramQueue interface {
	QueueAll(ids []string, reason string) int
}

// EditForm is the full replacement content of a record. Body and Image are
// kept from the existing record when nil.
type EditForm struct {
	ID           string   `json:"hash"`
	Name         string   `json:"name"`
	Sex          string   `json:"sex"`
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
	Image        *string  `json:"image,omitempty"`
	Body         *string  `json:"body,omitempty"`
}

// EditResult reports what an edit did. On rejection only Warnings is set.
type EditResult struct {
	Relative     models.Relative      `json:"relative"`
	Infos        []string             `json:"infos"`
	Warnings     []repository.Warning `json:"warnings"`
	Regenerating []string             `json:"regenerating"`
}

// RelativeService implements the read and edit flows on top of the store.
type RelativeService struct {
	store repository.RelativeRepository
	queue DiagramQueue
}

func NewRelativeService(store repository.RelativeRepository, queue DiagramQueue) *RelativeService {
	return &RelativeService{store: store, queue: queue}
}

// SetQueue attaches the diagram queue once the worker pool is running.
func (s *RelativeService) SetQueue(queue DiagramQueue) { s.queue = queue }

// List returns all relatives ordered by birthday.
func (s *RelativeService) List(descending bool) ([]models.Relative, error) {
	all, err := s.store.LoadAll()
	if err != nil {
		return nil, err
	}
	return s.store.Sorted(all, descending), nil
}

// Latest returns the relatives with the most recent birthdays.
func (s *RelativeService) Latest() ([]models.Relative, error) {
	return s.store.Latest(LatestCount)
}

// Search returns the relatives whose name contains query, ordered by birthday.
func (s *RelativeService) Search(query string) ([]models.Relative, error) {
	all, err := s.store.LoadAll()
	if err != nil {
		return nil, err
	}
	return s.store.Sorted(repository.Search(query, all), true), nil
}

// Page assembles the display model of id. Unknown ids yield an empty record
// with Exists set to false.
func (s *RelativeService) Page(id string) (*models.RelativePage, error) {
	all, err := s.store.LoadAll()
	if err != nil {
		return nil, err
	}

	page := &models.RelativePage{References: map[string]string{}}
	if rel, ok := repository.Lookup(all, id); ok {
		page.Relative = rel.Clone()
		page.Exists = true
	} else {
		page.Relative = models.EmptyRelative(id)
	}
	page.Children = repository.Children(id, all)

	html, err := utils.RenderMarkdown(page.Body)
	if err != nil {
		logging.L().Warnf("relatives: %s: %v", id, err)
	}
	page.BodyHTML = html

	refs := append([]string{page.Father, page.Mother}, page.Spouse...)
	refs = append(refs, page.Children...)
	for _, ref := range refs {
		if name, ok := repository.ResolveName(ref, all); ok {
			page.References[ref] = name
		}
	}
	return page, nil
}

// Edit replaces the record oldID with the form content. When the form carries
// a different id the record is renamed and every cross-reference to oldID is
// rewritten first. Unknown oldIDs create a new record.
func (s *RelativeService) Edit(oldID string, form EditForm) (*EditResult, error) {
	newID := strings.TrimSpace(form.ID)
	if newID == "" {
		newID = oldID
	}
	if err := repository.ValidateID(newID); err != nil {
		return nil, err
	}
	sex, err := models.ParseSex(form.Sex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	all, err := s.store.LoadAll()
	if err != nil {
		return nil, err
	}

	var rel models.Relative
	var before *models.Relative
	if existing, ok := repository.Lookup(all, oldID); ok {
		rel = existing.Clone()
		prev := existing.Clone()
		before = &prev
	} else {
		rel = models.EmptyRelative(oldID)
	}

	rel.Name = strings.TrimSpace(form.Name)
	rel.Sex = sex
	rel.Father = strings.TrimSpace(form.Father)
	rel.Mother = strings.TrimSpace(form.Mother)
	rel.Spouse = cleanIDs(form.Spouse)
	rel.Birthday = strings.TrimSpace(form.Birthday)
	rel.Birthplace = strings.TrimSpace(form.Birthplace)
	rel.WeddingDay = strings.TrimSpace(form.WeddingDay)
	rel.WeddingPlace = strings.TrimSpace(form.WeddingPlace)
	rel.DayOfDeath = strings.TrimSpace(form.DayOfDeath)
	rel.PlaceOfDeath = strings.TrimSpace(form.PlaceOfDeath)
	rel.Profession = strings.TrimSpace(form.Profession)
	if form.Image != nil {
		rel.Image = *form.Image
	}
	if form.Body != nil {
		rel.Body = *form.Body
	}

	if newID != oldID {
		if _, taken := repository.Lookup(all, newID); taken {
			return nil, fmt.Errorf("%w: %s", repository.ErrConflict, newID)
		}
	}

	if warnings := repository.ValidateEdit(&rel, all); len(warnings) > 0 {
		return &EditResult{Warnings: warnings}, ErrEditRejected
	}

	result := &EditResult{Infos: []string{}, Warnings: []repository.Warning{}}
	if newID != oldID {
		updated, err := s.store.Rename(oldID, newID)
		for _, id := range updated {
			result.Infos = append(result.Infos, fmt.Sprintf("Cross-references updated for %q", id))
		}
		if err != nil {
			return result, err
		}
		rel.ID = newID
	}

	if err := s.store.Save(&rel); err != nil {
		return result, err
	}
	result.Relative = rel
	result.Regenerating = s.regenerate(rel.ID, before, "record edited")
	return result, nil
}

// SetImage points the record id at a stored portrait.
func (s *RelativeService) SetImage(id, filename string) (*models.Relative, error) {
	rel, err := s.store.Find(id)
	if err != nil {
		return nil, err
	}
	rel.Image = filename
	if err := s.store.Save(rel); err != nil {
		return nil, err
	}
	s.regenerate(id, nil, "portrait changed")
	return rel, nil
}

// Affected returns id and every relative whose diagram shows id: parents,
// spouses and children, before and after an edit.
func (s *RelativeService) Affected(id string, before *models.Relative) ([]string, error) {
	all, err := s.store.LoadAll()
	if err != nil {
		return nil, err
	}
	set := map[string]bool{id: true}
	add := func(r *models.Relative) {
		if r == nil {
			return
		}
		for _, ref := range append([]string{r.Father, r.Mother}, r.Spouse...) {
			if ref != "" {
				set[ref] = true
			}
		}
	}
	add(before)
	if rel, ok := repository.Lookup(all, id); ok {
		add(rel)
	}
	for _, child := range repository.Children(id, all) {
		set[child] = true
	}

	ids := make([]string, 0, len(set))
	for ref := range set {
		if _, ok := repository.Lookup(all, ref); ok {
			ids = append(ids, ref)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RelativeService) regenerate(id string, before *models.Relative, reason string) []string {
	if s.queue == nil {
		return []string{}
	}
	ids, err := s.Affected(id, before)
	if err != nil {
		logging.L().Warnf("relatives: cannot determine diagrams to regenerate for %s: %v", id, err)
		return []string{}
	}
	s.queue.QueueAll(ids, reason)
	return ids
}

func cleanIDs(ids []string) []string {
	out := []string{}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
