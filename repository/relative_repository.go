package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/facette/natsort"
	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/metrics"
	"github.com/lochel/genealogy/models"
)

var (
	// ErrNotFound is returned by lookups of ids without a record. Callers
	// usually treat it as "new, empty record".
	ErrNotFound = errors.New("relative not found")
	// ErrConflict is returned when a rename targets an id that is already taken.
	ErrConflict = errors.New("relative id already exists")
	// ErrInvalidID is returned for ids that cannot be used as file names.
	ErrInvalidID = errors.New("invalid relative id")
)

// Warning is a non-fatal cross-reference problem. Warnings are collected and
// displayed, never returned as errors.
type Warning string

func (w Warning) String() string { return string(w) }

var validID = regexp.MustCompile(`^[\p{L}\p{N}_-][\p{L}\p{N}._-]*$`)

// ValidateID checks that id can be used both as a file name and as a
// cross-reference key.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ScanEntry is one successfully decoded record file.
type ScanEntry struct {
	Path        string
	Relative    models.Relative
	Diagnostics Diagnostics
}

// ScanFailure is a record file that could not be read or decoded.
type ScanFailure struct {
	Path string
	Err  error
}

// ScanResult holds everything found in the store directory, in walk order.
type ScanResult struct {
	Entries  []ScanEntry
	Failures []ScanFailure
}

// Relatives returns the decoded records of the scan.
func (r *ScanResult) Relatives() []models.Relative {
	relatives := make([]models.Relative, 0, len(r.Entries))
	for _, e := range r.Entries {
		relatives = append(relatives, e.Relative)
	}
	return relatives
}

func (r *ScanResult) entry(id string) (ScanEntry, bool) {
	for _, e := range r.Entries {
		if e.Relative.ID == id {
			return e, true
		}
	}
	return ScanEntry{}, false
}

// RelativeStore keeps relatives as one markdown file per person inside a
// directory tree. There is no cache: every read walks the directory.
//
// The store assumes a single writer. Writes from one process are serialized by
// an internal mutex; separate processes writing the same directory race, and a
// rename cascade interrupted half-way is left for the consistency check to
// report.
type RelativeStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewRelativeStore opens the store rooted at dir, creating the directory if needed.
func NewRelativeStore(dir string) (*RelativeStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid relatives directory '%s': %w", dir, err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create relatives directory '%s': %w", absDir, err)
	}
	return &RelativeStore{dir: absDir, now: time.Now}, nil
}

// Dir returns the absolute root directory of the store.
func (s *RelativeStore) Dir() string { return s.dir }

// SetClock replaces the clock used for the birthday sort fallback.
func (s *RelativeStore) SetClock(now func() time.Time) { s.now = now }

// Scan walks the store directory, subdirectories included, and decodes every
// record file. Files that fail to read or decode are reported as failures and
// do not abort the scan.
func (s *RelativeStore) Scan() (*ScanResult, error) {
	result := &ScanResult{}
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.dir {
				return err
			}
			result.Failures = append(result.Failures, ScanFailure{Path: path, Err: err})
			return nil
		}
		if d.IsDir() || !IsRecordFile(path) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			result.Failures = append(result.Failures, ScanFailure{Path: path, Err: err})
			return nil
		}
		rel, diags, err := DecodeRelative(string(raw))
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				decodeErr.Path = path
			}
			metrics.RecordDecodeFailures.Inc()
			logging.L().Warnf("relatives: skipping %s: %v", path, err)
			result.Failures = append(result.Failures, ScanFailure{Path: path, Err: err})
			return nil
		}
		for _, d := range diags {
			logging.L().Warnf("relatives: %s: %s", path, d)
		}
		metrics.RecordsScanned.Inc()
		result.Entries = append(result.Entries, ScanEntry{Path: path, Relative: *rel, Diagnostics: diags})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan relatives directory '%s': %w", s.dir, err)
	}
	return result, nil
}

// LoadAll returns every record that decodes. Order is the directory walk order.
func (s *RelativeStore) LoadAll() ([]models.Relative, error) {
	result, err := s.Scan()
	if err != nil {
		return nil, err
	}
	return result.Relatives(), nil
}

// Find returns the record with the given id or ErrNotFound.
func (s *RelativeStore) Find(id string) (*models.Relative, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	rel, ok := Lookup(all, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rel, nil
}

// Sorted returns a copy of relatives ordered by birthday.
func (s *RelativeStore) Sorted(relatives []models.Relative, descending bool) []models.Relative {
	return SortByBirthday(relatives, descending, s.now())
}

// Latest returns the n relatives with the most recent birthdays.
func (s *RelativeStore) Latest(n int) ([]models.Relative, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	sorted := s.Sorted(all, true)
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// Save writes rel, fully replacing any previous content of its file.
func (s *RelativeStore) Save(rel *models.Relative) error {
	if err := ValidateID(rel.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scan, err := s.Scan()
	if err != nil {
		return err
	}
	path := s.defaultPath(rel.ID)
	if e, ok := scan.entry(rel.ID); ok {
		path = e.Path
	}
	if err := s.writeRecord(path, rel); err != nil {
		return err
	}
	metrics.RecordWrites.WithLabelValues("save").Inc()
	logging.L().Infof("relatives: saved %s", path)
	return nil
}

// Rename moves the record oldID to newID. Every other record referring to
// oldID as father, mother or spouse is rewritten first; their ids are
// returned. The cascade is not atomic.
func (s *RelativeStore) Rename(oldID, newID string) ([]string, error) {
	if err := ValidateID(newID); err != nil {
		return nil, err
	}
	if oldID == newID {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scan, err := s.Scan()
	if err != nil {
		return nil, err
	}
	if _, taken := scan.entry(newID); taken {
		return nil, fmt.Errorf("%w: %s", ErrConflict, newID)
	}

	var updated []string
	for _, e := range scan.Entries {
		if e.Relative.ID == oldID {
			continue
		}
		rel := e.Relative.Clone()
		if !ReplaceReference(&rel, oldID, newID) {
			continue
		}
		if err := s.writeRecord(e.Path, &rel); err != nil {
			return updated, fmt.Errorf("failed to update cross-references of %s: %w", rel.ID, err)
		}
		metrics.RecordWrites.WithLabelValues("cascade").Inc()
		logging.L().Infof("relatives: cross-references updated for %s (%s -> %s)", rel.ID, oldID, newID)
		updated = append(updated, rel.ID)
	}

	old, ok := scan.entry(oldID)
	if !ok {
		return updated, nil
	}
	rel := old.Relative.Clone()
	rel.ID = newID
	newPath := filepath.Join(filepath.Dir(old.Path), newID+RecordExtension)
	if err := s.writeRecord(newPath, &rel); err != nil {
		return updated, err
	}
	if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
		return updated, fmt.Errorf("failed to remove old record '%s': %w", old.Path, err)
	}
	metrics.RecordWrites.WithLabelValues("rename").Inc()
	logging.L().Infof("relatives: renamed %s to %s", oldID, newID)
	return updated, nil
}

func (s *RelativeStore) defaultPath(id string) string {
	return filepath.Join(s.dir, id+RecordExtension)
}

// writeRecord replaces path through a temporary file in the same directory.
func (s *RelativeStore) writeRecord(path string, rel *models.Relative) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".relative-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(EncodeRelative(rel)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write relative %s: %w", rel.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync relative %s: %w", rel.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close relative %s: %w", rel.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move relative %s into place: %w", rel.ID, err)
	}
	return nil
}

// ReplaceReference rewrites father, mother and spouse entries equal to oldID.
// It reports whether anything changed.
func ReplaceReference(rel *models.Relative, oldID, newID string) bool {
	changed := false
	if rel.Father == oldID {
		rel.Father = newID
		changed = true
	}
	if rel.Mother == oldID {
		rel.Mother = newID
		changed = true
	}
	for i, sp := range rel.Spouse {
		if sp == oldID {
			rel.Spouse[i] = newID
			changed = true
		}
	}
	return changed
}

// Lookup finds id in relatives.
func Lookup(relatives []models.Relative, id string) (*models.Relative, bool) {
	if id == "" {
		return nil, false
	}
	for i := range relatives {
		if relatives[i].ID == id {
			return &relatives[i], true
		}
	}
	return nil, false
}

// Children returns the ids of all relatives whose father or mother is id, in
// the order of relatives.
func Children(id string, relatives []models.Relative) []string {
	children := []string{}
	for _, r := range relatives {
		if r.HasParent(id) {
			children = append(children, r.ID)
		}
	}
	return children
}

// ValidateEdit checks the cross-references of an edited record against the
// store. A non-empty result means the edit must not be applied.
func ValidateEdit(rel *models.Relative, relatives []models.Relative) []Warning {
	var warnings []Warning
	if rel.Father != "" {
		if _, ok := Lookup(relatives, rel.Father); !ok {
			warnings = append(warnings, Warning("Unable to find father, invalid cross-reference"))
		}
	}
	if rel.Mother != "" {
		if _, ok := Lookup(relatives, rel.Mother); !ok {
			warnings = append(warnings, Warning("Unable to find mother, invalid cross-reference"))
		}
	}
	for _, sp := range rel.Spouse {
		if sp == "" {
			continue
		}
		if _, ok := Lookup(relatives, sp); !ok {
			warnings = append(warnings, Warning(fmt.Sprintf("Unable to find spouse %q, invalid cross-reference", sp)))
		}
	}
	return warnings
}

// Search returns the relatives whose name contains query, ignoring case.
func Search(query string, relatives []models.Relative) []models.Relative {
	q := strings.ToLower(query)
	matches := []models.Relative{}
	for _, r := range relatives {
		if strings.Contains(strings.ToLower(r.Name), q) {
			matches = append(matches, r)
		}
	}
	return matches
}

// ResolveName returns the display name for id: the record's name, or the id
// itself when the record has no name. ok is false when id does not resolve.
func ResolveName(id string, relatives []models.Relative) (name string, ok bool) {
	rel, found := Lookup(relatives, id)
	if !found {
		return "", false
	}
	if rel.Name != "" {
		return rel.Name, true
	}
	return id, true
}

var birthdayLayouts = []string{"2.1.2006", "2006-1-2"}

// ParseBirthday parses the date formats found in records (D.M.YYYY and ISO).
func ParseBirthday(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range birthdayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortByBirthday returns a copy of relatives ordered by birthday. Missing or
// unparsable birthdays sort as now. Equal dates fall back to natural id order.
func SortByBirthday(relatives []models.Relative, descending bool, now time.Time) []models.Relative {
	type keyed struct {
		rel  models.Relative
		date time.Time
	}
	today := now.Truncate(24 * time.Hour)
	items := make([]keyed, len(relatives))
	for i, r := range relatives {
		d, ok := ParseBirthday(r.Birthday)
		if !ok {
			d = today
		}
		items[i] = keyed{rel: r, date: d}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.date.Equal(b.date) {
			if descending {
				return a.date.After(b.date)
			}
			return a.date.Before(b.date)
		}
		return natsort.Compare(a.rel.ID, b.rel.ID)
	})

	sorted := make([]models.Relative, len(items))
	for i, it := range items {
		sorted[i] = it.rel
	}
	return sorted
}
