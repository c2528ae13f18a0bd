//go:build integration

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/workbench/pkg/api"
	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/janitor"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/storage"
	"github.com/platinummonkey/workbench/pkg/users"
	"github.com/platinummonkey/workbench/pkg/web"
)

const testSecret = "integration-secret-that-is-long-enough-for-hs256"

// setupPostgres starts a PostgreSQL container and applies the schema
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping container tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("workbench_test"),
		postgres.WithUsername("workbench"),
		postgres.WithPassword("workbench"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := storage.OpenDatabase(ctx, storage.DatabaseConfig{URL: connStr, MaxConns: 5, Timeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(ctx, db))
	// a second run must be a no-op
	require.NoError(t, storage.Migrate(ctx, db))
	return db
}

type stack struct {
	db       *sql.DB
	server   *httptest.Server
	users    *users.PostgresStore
	projects *projects.PostgresService
	assets   *assets.Service
	blobs    *storage.FilesystemStore
	redis    *redis.Client
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := setupPostgres(t)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	blobs, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	keys, err := auth.NewStaticKeySource(testSecret)
	require.NoError(t, err)

	userStore := users.NewPostgresStore(db)
	projectService := projects.NewPostgresService(db)
	assetService := assets.NewService(db, blobs, nil)
	membership := projects.NewMembershipCache(projectService, redisClient, projects.DefaultCacheConfig(), nil, nil)
	issuer := auth.NewIssuer(keys)
	verifier := auth.NewVerifier(keys, userStore)
	checker := auth.NewAccessChecker(projectService, membership, nil)

	server := api.NewServer(api.Config{MaxUploadBytes: 1 << 20}, api.Dependencies{
		Issuer:   issuer,
		Verifier: verifier,
		Checker:  checker,
		Users:    userStore,
		Projects: projectService,
		Assets:   assetService,
		Cache:    membership,
	})

	renderer, err := web.NewTemplateRenderer("")
	require.NoError(t, err)
	web.NewHandlers(web.Config{}, web.Dependencies{
		Issuer:   issuer,
		Verifier: verifier,
		Checker:  checker,
		Accounts: userStore,
		Projects: projectService,
		Renderer: renderer,
	}).Register(server.Router())

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	return &stack{
		db:       db,
		server:   ts,
		users:    userStore,
		projects: projectService,
		assets:   assetService,
		blobs:    blobs,
		redis:    redisClient,
	}
}

func (s *stack) createUser(t *testing.T, email string, role auth.Role) *auth.Identity {
	t.Helper()
	identity, err := s.users.Create(context.Background(), &users.CreateUserRequest{
		Email:    email,
		Name:     email,
		Password: "correct horse battery",
		Role:     role,
	})
	require.NoError(t, err)
	return identity
}

func (s *stack) login(t *testing.T, email string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"correct horse battery"}`, email)
	resp, err := http.Post(s.server.URL+"/api/auth/login", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var token api.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))
	require.NotEmpty(t, token.AccessToken)
	return token.AccessToken
}

func (s *stack) request(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *stack) requestJSON(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.request(t, method, path, token, body, "application/json")
}

func TestProjectAccessEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStack(t)

	s.createUser(t, "admin@example.com", auth.RoleAdministrator)
	client := s.createUser(t, "client@example.com", auth.RoleClient)
	member := s.createUser(t, "member@example.com", auth.RoleStandard)
	s.createUser(t, "outsider@example.com", auth.RoleStandard)

	adminToken := s.login(t, "admin@example.com")
	clientToken := s.login(t, "client@example.com")
	memberToken := s.login(t, "member@example.com")
	outsiderToken := s.login(t, "outsider@example.com")

	// Admin creates a project owned by the client
	resp := s.requestJSON(t, "POST", "/api/projects", adminToken, map[string]interface{}{
		"name":      "Sensor board",
		"client_id": client.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var project projects.Project
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&project))
	path := fmt.Sprintf("/api/projects/%d", project.ID)

	// Client sees it through ownership; nobody else yet
	assert.Equal(t, http.StatusOK, s.request(t, "GET", path, clientToken, nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, s.request(t, "GET", path, memberToken, nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, s.request(t, "GET", "/api/projects/999999", memberToken, nil, "").StatusCode)

	// Granting membership takes effect right away despite the cached denial
	resp = s.requestJSON(t, "POST", path+"/members", adminToken, map[string]int64{"user_id": member.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, http.StatusOK, s.request(t, "GET", path, memberToken, nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, s.request(t, "GET", path, outsiderToken, nil, "").StatusCode)

	// Listing is scoped to the caller
	resp = s.request(t, "GET", "/api/projects", outsiderToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []projects.Project
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Empty(t, listed)

	// Revoking is just as immediate
	resp = s.request(t, "DELETE", fmt.Sprintf("%s/members/%d", path, member.ID), adminToken, nil, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusForbidden, s.request(t, "GET", path, memberToken, nil, "").StatusCode)

	// Standard users cannot manage projects
	resp = s.requestJSON(t, "POST", "/api/projects", memberToken, map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A deleted account's credential stops working
	require.NoError(t, s.users.Delete(context.Background(), member.ID))
	assert.Equal(t, http.StatusUnauthorized, s.request(t, "GET", "/api/users/me", memberToken, nil, "").StatusCode)
}

func TestDocumentsAndJanitor(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStack(t)
	ctx := context.Background()

	s.createUser(t, "admin@example.com", auth.RoleAdministrator)
	adminToken := s.login(t, "admin@example.com")

	project, err := s.projects.CreateProject(ctx, &projects.ProjectInput{Name: stringPtr("Enclosure")})
	require.NoError(t, err)
	base := fmt.Sprintf("/api/projects/%d/documents", project.ID)

	upload := func(name string) assets.Document {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("name", name))
		require.NoError(t, mw.WriteField("type", "technical"))
		fw, err := mw.CreateFormFile("file", name+".pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 " + name))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp := s.request(t, "POST", base, adminToken, &buf, mw.FormDataContentType())
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var doc assets.Document
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		return doc
	}

	kept := upload("datasheet")
	dropped := upload("draft")

	resp := s.request(t, "GET", fmt.Sprintf("%s/%d/download", base, kept.ID), adminToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 datasheet", string(content))

	// Orphan a blob the way a crash between row and blob removal would
	var droppedKey string
	require.NoError(t, s.db.QueryRowContext(ctx, `DELETE FROM documents WHERE id = $1 RETURNING blob_key`, dropped.ID).Scan(&droppedKey))

	// A blob the database has never heard of
	_, err = s.blobs.Put(ctx, storage.NewKey(storage.PrefixModels, "stray.stl"), bytes.NewBufferString("solid"), "model/stl")
	require.NoError(t, err)

	sweeper := janitor.NewSweeper(s.assets, s.blobs, janitor.Config{}, nil, nil)
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Referenced)
	assert.Equal(t, 2, report.Deleted)

	exists, err := s.blobs.Exists(ctx, droppedKey)
	require.NoError(t, err)
	assert.False(t, exists)

	// The referenced document still downloads
	resp = s.request(t, "GET", fmt.Sprintf("%s/%d/download", base, kept.ID), adminToken, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebLoginSharesCredential(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStack(t)
	s.createUser(t, "member@example.com", auth.RoleStandard)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.PostForm(s.server.URL+"/auth/login", map[string][]string{
		"username": {"member@example.com"},
		"password": {"correct horse battery"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	// The page cookie authenticates the JSON API too
	req, err := http.NewRequest("GET", s.server.URL+"/api/users/me", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func stringPtr(s string) *string { return &s }
