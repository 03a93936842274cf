package handlers

import (
	"archive/zip"
	"bytes"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/services"
	"github.com/lochel/genealogy/workers"
)

func strPtr(s string) *string { return &s }

func (e *testEnv) seed(t *testing.T, rels ...models.Relative) {
	t.Helper()
	for i := range rels {
		require.NoError(t, e.relatives.Save(&rels[i]))
	}
}

func seedRelative(id, name, birthday string) models.Relative {
	r := models.EmptyRelative(id)
	r.Name = name
	r.Birthday = birthday
	return r
}

func TestRelativeReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seedRelative("karl", "Karl Lochel", "1.1.1870"),
		seedRelative("anna", "Anna Lochel", "3.4.1901"),
		seedRelative("otto", "Otto Becker", "5.6.1899"),
	)

	rec := env.do(t, http.MethodGet, "/api/relatives/latest", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[[]models.Relative](t, rec)
	require.Len(t, latest, 3)
	assert.Equal(t, "anna", latest[0].ID)

	rec = env.do(t, http.MethodGet, "/api/relatives?order=asc", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "karl", decode[[]models.Relative](t, rec)[0].ID)

	rec = env.do(t, http.MethodGet, "/api/relatives?order=sideways", env.member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/relatives/search?q=lochel", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Relative](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/relatives/search", env.member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelativeGet(t *testing.T) {
	env := newTestEnv(t)
	karl := seedRelative("karl", "Karl", "")
	anna := seedRelative("anna", "Anna", "")
	anna.Father = "karl"
	anna.Body = "Grew up in *Köln*."
	env.seed(t, karl, anna)

	rec := env.do(t, http.MethodGet, "/api/relatives/anna", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.RelativePage](t, rec)
	assert.True(t, page.Exists)
	assert.Equal(t, "Karl", page.References["karl"])
	assert.Contains(t, page.BodyHTML, "<em>Köln</em>")

	rec = env.do(t, http.MethodGet, "/api/relatives/karl", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"anna"}, decode[models.RelativePage](t, rec).Children)

	rec = env.do(t, http.MethodGet, "/api/relatives/unborn", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	blank := decode[models.RelativePage](t, rec)
	assert.False(t, blank.Exists)
	assert.Equal(t, models.DefaultImage, blank.Image)

	rec = env.do(t, http.MethodGet, "/api/relatives/.hidden", env.member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidID, errorCode(t, rec))
}

func TestRelativeUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("karl", "Karl", ""), seedRelative("marie", "Marie", ""))

	form := services.EditForm{Name: "Anna", Sex: "female", Father: "karl", Body: strPtr("New story")}
	rec := env.do(t, http.MethodPut, "/api/relatives/anna", env.member, form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[services.EditResult](t, rec)
	assert.Equal(t, "anna", result.Relative.ID)
	assert.ElementsMatch(t, []string{"anna", "karl"}, result.Regenerating)

	saved, err := env.relatives.Find("anna")
	require.NoError(t, err)
	assert.Equal(t, "karl", saved.Father)
	assert.Equal(t, "New story", saved.Body)

	form.ID = "anna-1901"
	rec = env.do(t, http.MethodPut, "/api/relatives/anna", env.member, form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "anna-1901", decode[services.EditResult](t, rec).Relative.ID)
	_, err = env.relatives.Find("anna")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rec = env.do(t, http.MethodPut, "/api/relatives/anna-1901", env.member, services.EditForm{ID: "marie", Name: "Anna"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/relatives/anna-1901", env.member, services.EditForm{Name: "Anna", Sex: "robot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/relatives/anna-1901", env.inactive, form)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRelativeUpdateRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("anna", "Anna", ""))

	rec := env.do(t, http.MethodPut, "/api/relatives/anna", env.member, services.EditForm{Name: "Anna", Mother: "ghost"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[rejectedEditResponse](t, rec)
	assert.Equal(t, CodeRejected, resp.Errors[0].Code)
	assert.Equal(t, []repository.Warning{"Unable to find mother, invalid cross-reference"}, resp.Warnings)

	saved, err := env.relatives.Find("anna")
	require.NoError(t, err)
	assert.Empty(t, saved.Mother)
}

func portraitRequest(t *testing.T, path, filename string, user *models.User) *http.Request {
	t.Helper()
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, imaging.New(80, 40, color.NRGBA{G: 255, A: 255}), imaging.PNG))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(png.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	return req
}

func jpegFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	require.NoError(t, err)
	return matches
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("anna", "Anna", ""))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, portraitRequest(t, "/api/relatives/anna/image", "anna.png", env.member))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rel := decode[models.Relative](t, rec)
	assert.True(t, strings.HasSuffix(rel.Image, ".jpg"))
	assert.FileExists(t, filepath.Join(env.imagesDir, rel.Image))

	served := env.do(t, http.MethodGet, "/api/images/"+rel.Image, nil, nil)
	assert.Equal(t, http.StatusOK, served.Code)
	assert.NotEmpty(t, served.Header().Get("Cache-Control"))

	saved, err := env.relatives.Find("anna")
	require.NoError(t, err)
	assert.Equal(t, rel.Image, saved.Image)
}

func TestUploadImageErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("anna", "Anna", ""))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, portraitRequest(t, "/api/relatives/ghost/image", "ghost.png", env.member))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, jpegFiles(t, env.imagesDir), "orphaned portraits must be removed")

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, portraitRequest(t, "/api/relatives/anna/image", "anna.pdf", env.member))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/relatives/anna/image", strings.NewReader("plain"))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, env.member))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestDiagramEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("anna", "Anna", ""))

	rec := env.do(t, http.MethodGet, "/api/relatives/anna/diagram/status", env.member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/relatives/anna/diagram", env.member, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "anna", decode[workers.RenderStatus](t, rec).Relative)

	require.Eventually(t, func() bool {
		s, ok := env.renders.Status("anna")
		return ok && s.State == workers.StateDone
	}, 2*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/api/relatives/anna/diagram/status", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workers.StateDone, decode[workers.RenderStatus](t, rec).State)

	rec = env.do(t, http.MethodPost, "/api/relatives/ghost/diagram", env.member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/relatives/anna/diagram", env.member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no renderer configured, so there is no image")

	rec = env.do(t, http.MethodPost, "/api/relatives/anna/diagram", env.inactive, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDiagramImage(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("anna", "Anna", ""))

	familyDir := filepath.Join(env.imagesDir, "family")
	require.NoError(t, os.MkdirAll(familyDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(familyDir, "anna.png"), []byte("\x89PNG fake"), 0644))

	rec := env.do(t, http.MethodGet, "/api/relatives/anna/diagram", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG fake", rec.Body.String())
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	a := seedRelative("a", "A", "")
	a.Spouse = []string{"b"}
	env.seed(t, a, seedRelative("b", "B", ""))

	rec := env.do(t, http.MethodGet, "/api/validate", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[services.Report](t, rec)
	assert.Equal(t, 2, report.Relatives)
	assert.Equal(t, []repository.Warning{"b is missing a cross-reference to their spouse a"}, report.Warnings)
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRelative("anna", "Anna", ""))

	rec := env.do(t, http.MethodGet, "/api/export", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "relatives-")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "anna.md")
}
