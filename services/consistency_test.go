package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
)

func newStore(t *testing.T) *repository.RelativeStore {
	t.Helper()
	store, err := repository.NewRelativeStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func save(t *testing.T, store *repository.RelativeStore, id string, mutate func(*models.Relative)) {
	t.Helper()
	rel := models.EmptyRelative(id)
	rel.Name = id
	if mutate != nil {
		mutate(&rel)
	}
	require.NoError(t, store.Save(&rel))
}

func TestValidateSpouseSymmetry(t *testing.T) {
	store := newStore(t)
	save(t, store, "a", func(r *models.Relative) { r.Spouse = []string{"b"} })
	save(t, store, "b", func(r *models.Relative) { r.Spouse = []string{"a"} })

	report, err := Validate(store)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Relatives)

	save(t, store, "b", nil)

	report, err = Validate(store)
	require.NoError(t, err)
	assert.Equal(t, []repository.Warning{"b is missing a cross-reference to their spouse a"}, report.Warnings)
}

func TestValidateUnresolvedReferences(t *testing.T) {
	store := newStore(t)
	save(t, store, "c", func(r *models.Relative) {
		r.Father = "f"
		r.Mother = "m"
		r.Spouse = []string{"s"}
	})

	report, err := Validate(store)
	require.NoError(t, err)
	assert.Equal(t, []repository.Warning{
		"c has an invalid cross-reference to their father f",
		"c has an invalid cross-reference to their mother m",
		"c has an invalid cross-reference to their spouse s",
	}, report.Warnings)
}

func TestValidateFileProblems(t *testing.T) {
	store := newStore(t)
	save(t, store, "a", func(r *models.Relative) { r.Spouse = []string{""} })

	misnamed := models.EmptyRelative("x")
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "y.md"), repository.EncodeRelative(&misnamed), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.md"), []byte("---\n{{\n---\n"), 0644))

	report, err := Validate(store)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Relatives)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, []repository.Warning{
		repository.Warning("Failed to read " + filepath.Join(store.Dir(), "broken.md")),
		"a contains an empty spouse entry",
		repository.Warning("Wrong filename " + filepath.Join(store.Dir(), "y.md")),
	}, report.Warnings)
}

func TestValidateDuplicateID(t *testing.T) {
	store := newStore(t)
	save(t, store, "a", nil)
	dup := models.EmptyRelative("a")
	sub := filepath.Join(store.Dir(), "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.md"), repository.EncodeRelative(&dup), 0644))

	report, err := Validate(store)
	require.NoError(t, err)
	assert.Equal(t, []repository.Warning{
		repository.Warning("Duplicate id a in " + filepath.Join(sub, "a.md")),
	}, report.Warnings)
}

type failingScanner struct{}

func (failingScanner) Scan() (*repository.ScanResult, error) {
	return nil, errors.New("disk gone")
}

func TestValidateScanError(t *testing.T) {
	_, err := Validate(failingScanner{})
	assert.ErrorContains(t, err, "disk gone")
}
