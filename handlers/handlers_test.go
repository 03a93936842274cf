package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochel/genealogy/database"
	"github.com/lochel/genealogy/diagram"
	"github.com/lochel/genealogy/media"
	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/services"
	"github.com/lochel/genealogy/workers"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	router    http.Handler
	relatives *repository.RelativeStore
	users     repository.UserRepository
	imagesDir string
	renders   *workers.DiagramRenderer

	admin    *models.User
	member   *models.User
	inactive *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	relatives, err := repository.NewRelativeStore(filepath.Join(root, "relatives"))
	require.NoError(t, err)
	imagesDir := filepath.Join(root, "relatives", "images")
	images, err := media.NewLocalStorage(imagesDir, media.DefaultSubDirs)
	require.NoError(t, err)
	processor := media.NewProcessor(images, images, media.PortraitOptions{MaxSize: 64}, media.DiagramOptions{})

	generator := diagram.NewGenerator(relatives, filepath.Join(root, "tex"), "", diagram.DefaultTheme())
	renders := workers.NewDiagramRenderer(generator, nil, nil, 10, 1)
	t.Cleanup(renders.Stop)

	dbPath := filepath.Join(root, "site.db")
	db, err := database.InitDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gormDB, err := database.InitGormDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	users := repository.NewGormUserRepository(gormDB)

	env := &testEnv{relatives: relatives, users: users, imagesDir: imagesDir, renders: renders}
	env.admin = createUser(t, users, "admin@example.org", models.RoleAdmin)
	env.member = createUser(t, users, "member@example.org", models.RoleMember)
	env.inactive = createUser(t, users, "new@example.org", models.RoleInactive)

	api := &API{
		Users:       users,
		Secret:      testSecret,
		Auth:        NewAuthHandler(users, testSecret),
		Relatives:   NewRelativeHandler(services.NewRelativeService(relatives, renders), processor, 1<<20),
		Diagrams:    NewDiagramHandler(relatives, renders, images),
		Validate:    &ValidateHandler{Store: relatives},
		Contact:     &ContactHandler{DB: db},
		Admin:       NewAdminUserHandler(users, db),
		Permissions: &PermissionHandler{},
		Export:      &ExportHandler{Dir: relatives.Dir()},
		ImagesDir:   imagesDir,
	}
	r := chi.NewRouter()
	r.Use(RequestLogger(db))
	r.Route("/api", api.Mount)
	env.router = r
	return env
}

func createUser(t *testing.T, users repository.UserRepository, email string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{Name: string(role), Email: email, Role: role, PasswordHash: "unused"}
	require.NoError(t, users.Create(user))
	return user
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := IssueToken(testSecret, user, time.Now())
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, user *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode[APIErrorResponse](t, rec)
	require.NotEmpty(t, resp.Errors)
	return resp.Errors[0].Code
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{Name: "Anna", Email: "anna@example.org", Role: models.RoleMember}
	require.NoError(t, user.SetPassword("correct horse"))
	require.NoError(t, env.users.Create(user))

	rec := env.do(t, http.MethodPost, "/api/auth/login", nil, LoginPayload{Email: "Anna@example.org", Password: "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[LoginResponse](t, rec)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, user.ID, login.User.ID)
	assert.True(t, login.ExpiresAt.After(time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	me := httptest.NewRecorder()
	env.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "anna@example.org", decode[models.User](t, me).Email)

	rec = env.do(t, http.MethodPost, "/api/auth/login", nil, LoginPayload{Email: "anna@example.org", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, errorCode(t, rec))
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{Name: "New", Email: "pending@example.org"}
	require.NoError(t, user.SetPassword("long enough"))
	require.NoError(t, env.users.Create(user))

	rec := env.do(t, http.MethodPost, "/api/auth/login", nil, LoginPayload{Email: "pending@example.org", Password: "long enough"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", nil, SignupPayload{Name: "Otto", Email: "otto@example.org", Password: "12345678"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created, err := env.users.GetByEmail("otto@example.org")
	require.NoError(t, err)
	assert.Equal(t, models.RoleInactive, created.Role)

	rec = env.do(t, http.MethodPost, "/api/auth/signup", nil, SignupPayload{Name: "Otto", Email: "OTTO@example.org", Password: "12345678"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signup", nil, SignupPayload{Name: "Short", Email: "s@example.org", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signup", nil, SignupPayload{Name: "", Email: "noname@example.org", Password: "12345678"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/relatives", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/relatives", nil)
	req.Header.Set("Authorization", "Token abc")
	bad := httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	forged, _, err := IssueToken([]byte("other-secret"), env.member, time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/relatives", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	bad = httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	expired, _, err := IssueToken(testSecret, env.member, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/relatives", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	bad = httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	rec = env.do(t, http.MethodGet, "/api/relatives", env.inactive, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/relatives", env.member, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPermissionsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/permissions/me", env.member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]string](t, rec)
	assert.Contains(t, mine, "relative.edit")
	assert.NotContains(t, mine, "user.list")

	rec = env.do(t, http.MethodGet, "/api/permissions", env.member, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/api/users", "/api/requests", "/api/contact", "/api/export"} {
		rec = env.do(t, http.MethodGet, path, env.member, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/users", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]UserResponseDTO](t, rec)
	require.Len(t, users, 3)
	assert.Empty(t, users[2].Permissions)

	path := "/api/users/" + itoa(env.inactive.ID) + "/role"
	rec = env.do(t, http.MethodPut, path, env.admin, RoleUpdatePayload{Role: "member"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleMember, decode[UserResponseDTO](t, rec).Role)

	rec = env.do(t, http.MethodPut, path, env.admin, RoleUpdatePayload{Role: "overlord"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/users/"+itoa(env.admin.ID)+"/role", env.admin, RoleUpdatePayload{Role: "member"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/users/9999/role", env.admin, RoleUpdatePayload{Role: "member"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestLog(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/relatives/latest", nil, nil)

	rec := env.do(t, http.MethodGet, "/api/requests?limit=1", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]database.RequestLogEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/relatives/latest", entries[0].FullPath)
	assert.Equal(t, http.StatusOK, entries[0].Status)

	rec = env.do(t, http.MethodGet, "/api/requests?limit=zero", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContact(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/contact", nil, ContactPayload{Name: "Visitor", Email: "v@example.org", Message: "Hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/contact", nil, ContactPayload{Name: "Visitor", Email: "nope", Message: "Hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/contact", nil, ContactPayload{Name: "V", Email: "v@example.org", Message: string(bytes.Repeat([]byte("x"), 5001))})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/contact", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[[]database.ContactMessage](t, rec)
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello", messages[0].Message)
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
