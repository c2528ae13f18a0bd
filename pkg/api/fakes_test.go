package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/auth/authtest"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/users"
)

// fakeUsers is an in-memory UserStore over the authtest fixture
type fakeUsers struct {
	*authtest.Identities
	mu     sync.Mutex
	nextID int64
}

func (f *fakeUsers) Create(ctx context.Context, req *users.CreateUserRequest) (*auth.Identity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := f.GetByEmail(ctx, req.Email); err == nil {
		return nil, users.ErrEmailTaken
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	identity := &auth.Identity{
		ID:              id,
		Email:           req.Email,
		Name:            req.Name,
		Role:            req.Role,
		IsAdministrator: req.Role == auth.RoleAdministrator,
		IsActive:        req.IsActive == nil || *req.IsActive,
		PasswordHash:    hash,
		CreatedAt:       time.Now(),
	}
	f.Put(identity)
	return f.GetByID(ctx, id)
}

func (f *fakeUsers) Update(ctx context.Context, id int64, req *users.UpdateUserRequest) (*auth.Identity, error) {
	identity, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, users.ErrUserNotFound
	}
	if req.Name != nil {
		identity.Name = *req.Name
	}
	if req.Email != nil {
		identity.Email = *req.Email
	}
	if req.Role != nil {
		identity.Role = *req.Role
		identity.IsAdministrator = *req.Role == auth.RoleAdministrator
	}
	if req.IsActive != nil {
		identity.IsActive = *req.IsActive
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		identity.PasswordHash = hash
	}
	f.Put(identity)
	return f.GetByID(ctx, id)
}

func (f *fakeUsers) Delete(ctx context.Context, id int64) error {
	if !f.Remove(id) {
		return users.ErrUserNotFound
	}
	return nil
}

// fakeProjects is an in-memory ProjectService
type fakeProjects struct {
	mu       sync.Mutex
	nextID   int64
	projects map[int64]*projects.Project
	members  map[int64]map[int64]bool
	tasks    map[int64]*projects.Task
	updates  map[int64]*projects.Update
	setErr   error
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{
		nextID:   1000,
		projects: map[int64]*projects.Project{},
		members:  map[int64]map[int64]bool{},
		tasks:    map[int64]*projects.Task{},
		updates:  map[int64]*projects.Update{},
	}
}

// add creates a project with explicit members
func (f *fakeProjects) add(id int64, name string, members ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[id] = &projects.Project{ID: id, Name: name}
	f.members[id] = map[int64]bool{}
	for _, m := range members {
		f.members[id][m] = true
	}
}

func (f *fakeProjects) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeProjects) ProjectExists(ctx context.Context, projectID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.projects[projectID]
	return ok, nil
}

func (f *fakeProjects) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[projectID]; ok && p.ClientID != nil && *p.ClientID == userID {
		return true, nil
	}
	return f.members[projectID][userID], nil
}

func (f *fakeProjects) ListProjects(ctx context.Context) ([]*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*projects.Project{}
	for _, p := range f.projects {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeProjects) ListForIdentity(ctx context.Context, identity *auth.Identity) ([]*projects.Project, error) {
	all, _ := f.ListProjects(ctx)
	if identity.Administrator() {
		return all, nil
	}
	result := []*projects.Project{}
	for _, p := range all {
		if ok, _ := f.IsMember(ctx, identity.ID, p.ID); ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (f *fakeProjects) GetProject(ctx context.Context, id int64) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, projects.ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeProjects) CreateProject(ctx context.Context, in *projects.ProjectInput) (*projects.Project, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &projects.Project{ID: f.id(), Name: *in.Name, ClientID: in.ClientID}
	f.projects[p.ID] = p
	f.members[p.ID] = map[int64]bool{}
	return p, nil
}

func (f *fakeProjects) UpdateProject(ctx context.Context, id int64, in *projects.ProjectInput) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, projects.ErrProjectNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.ClientID != nil {
		p.ClientID = in.ClientID
	}
	return p, nil
}

func (f *fakeProjects) DeleteProject(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return projects.ErrProjectNotFound
	}
	delete(f.projects, id)
	delete(f.members, id)
	return nil
}

func (f *fakeProjects) ListMembers(ctx context.Context, projectID int64) ([]*projects.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*projects.Member{}
	for id := range f.members[projectID] {
		result = append(result, &projects.Member{UserID: id})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (f *fakeProjects) AddMember(ctx context.Context, projectID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[projectID][userID] {
		return projects.ErrMemberExists
	}
	f.members[projectID][userID] = true
	return nil
}

func (f *fakeProjects) RemoveMember(ctx context.Context, projectID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.members[projectID][userID] {
		return projects.ErrMemberNotFound
	}
	delete(f.members[projectID], userID)
	return nil
}

func (f *fakeProjects) ProjectIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []int64{}
	for projectID, set := range f.members {
		p := f.projects[projectID]
		if set[userID] || (p != nil && p.ClientID != nil && *p.ClientID == userID) {
			result = append(result, projectID)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (f *fakeProjects) SetUserProjects(ctx context.Context, userID int64, projectIDs []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return nil, f.setErr
	}
	want := map[int64]bool{}
	for _, id := range projectIDs {
		if _, ok := f.projects[id]; !ok {
			return nil, projects.ErrProjectNotFound
		}
		want[id] = true
	}
	var changed []int64
	for projectID, set := range f.members {
		if set[userID] != want[projectID] {
			changed = append(changed, projectID)
			if want[projectID] {
				set[userID] = true
			} else {
				delete(set, userID)
			}
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, nil
}

func (f *fakeProjects) ListTasks(ctx context.Context, projectID int64) ([]*projects.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*projects.Task{}
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeProjects) GetTask(ctx context.Context, projectID, taskID int64) (*projects.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.ProjectID != projectID {
		return nil, projects.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeProjects) CreateTask(ctx context.Context, projectID int64, in *projects.TaskInput) (*projects.Task, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &projects.Task{ID: f.id(), ProjectID: projectID, Name: *in.Name, Status: projects.TaskStatusPending}
	if in.IsCriticalPath != nil {
		t.IsCriticalPath = *in.IsCriticalPath
	}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeProjects) UpdateTask(ctx context.Context, projectID, taskID int64, in *projects.TaskInput) (*projects.Task, error) {
	t, err := f.GetTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	return t, nil
}

func (f *fakeProjects) DeleteTask(ctx context.Context, projectID, taskID int64) error {
	if _, err := f.GetTask(ctx, projectID, taskID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeProjects) ListUpdates(ctx context.Context, projectID int64) ([]*projects.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*projects.Update{}
	for _, u := range f.updates {
		if u.ProjectID == projectID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeProjects) CreateUpdate(ctx context.Context, projectID int64, content string, date time.Time) (*projects.Update, error) {
	if content == "" {
		return nil, auth.NewError(auth.KindInvalidArgument, "content is required")
	}
	if date.IsZero() {
		date = time.Now().UTC().Truncate(24 * time.Hour)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &projects.Update{ID: f.id(), ProjectID: projectID, Content: content, Date: date}
	f.updates[u.ID] = u
	return u, nil
}

func (f *fakeProjects) getUpdate(projectID, updateID int64) (*projects.Update, error) {
	u, ok := f.updates[updateID]
	if !ok || u.ProjectID != projectID {
		return nil, projects.ErrUpdateNotFound
	}
	return u, nil
}

func (f *fakeProjects) ToggleUpdate(ctx context.Context, projectID, updateID int64) (*projects.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.getUpdate(projectID, updateID)
	if err != nil {
		return nil, err
	}
	u.Completed = !u.Completed
	return u, nil
}

func (f *fakeProjects) DeleteUpdate(ctx context.Context, projectID, updateID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.getUpdate(projectID, updateID); err != nil {
		return err
	}
	delete(f.updates, updateID)
	return nil
}

// fakeAssets is an in-memory AssetService keeping file bodies in a map
type fakeAssets struct {
	mu        sync.Mutex
	nextID    int64
	documents map[int64]*assets.Document
	models    map[int64]*assets.Model3D
	blobs     map[string][]byte
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		nextID:    100,
		documents: map[int64]*assets.Document{},
		models:    map[int64]*assets.Model3D{},
		blobs:     map[string][]byte{},
	}
}

func (f *fakeAssets) ListDocuments(ctx context.Context, projectID int64) ([]*assets.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*assets.Document{}
	for _, d := range f.documents {
		if d.ProjectID == projectID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeAssets) GetDocument(ctx context.Context, projectID, documentID int64) (*assets.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok || d.ProjectID != projectID {
		return nil, assets.ErrDocumentNotFound
	}
	return d, nil
}

func (f *fakeAssets) UploadDocument(ctx context.Context, projectID int64, in *assets.DocumentUpload) (*assets.Document, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	uploadedBy := in.UploadedBy
	d := &assets.Document{
		ID:          f.nextID,
		ProjectID:   projectID,
		Name:        in.Name,
		Filename:    in.Filename,
		Type:        in.Type,
		Key:         fmt.Sprintf("documents/%d/%d", projectID, f.nextID),
		ContentType: in.ContentType,
		Size:        int64(len(body)),
		UploadedBy:  &uploadedBy,
	}
	f.documents[d.ID] = d
	f.blobs[d.Key] = body
	return d, nil
}

func (f *fakeAssets) OpenDocument(ctx context.Context, projectID, documentID int64) (*assets.Document, io.ReadCloser, error) {
	d, err := f.GetDocument(ctx, projectID, documentID)
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return d, io.NopCloser(bytes.NewReader(f.blobs[d.Key])), nil
}

func (f *fakeAssets) DeleteDocument(ctx context.Context, projectID, documentID int64) error {
	d, err := f.GetDocument(ctx, projectID, documentID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.documents, documentID)
	delete(f.blobs, d.Key)
	return nil
}

func (f *fakeAssets) ListModelsForIdentity(ctx context.Context, identity *auth.Identity) ([]*assets.Model3D, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*assets.Model3D{}
	for _, m := range f.models {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeAssets) GetModel(ctx context.Context, id int64) (*assets.Model3D, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[id]
	if !ok {
		return nil, assets.ErrModelNotFound
	}
	copied := *m
	return &copied, nil
}

// addModel stores a model directly
func (f *fakeAssets) addModel(id int64, projectID *int64, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("models/%d", id)
	f.models[id] = &assets.Model3D{ID: id, ProjectID: projectID, Name: "model", Format: "glb", Key: key, Size: int64(len(body))}
	f.blobs[key] = []byte(body)
}

func (f *fakeAssets) UploadModel(ctx context.Context, in *assets.ModelUpload) (*assets.Model3D, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := &assets.Model3D{
		ID:          f.nextID,
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		Key:         fmt.Sprintf("models/%d", f.nextID),
		Size:        int64(len(body)),
	}
	f.models[m.ID] = m
	f.blobs[m.Key] = body
	return m, nil
}

func (f *fakeAssets) AssignModel(ctx context.Context, modelID int64, projectID *int64) (*assets.Model3D, error) {
	f.mu.Lock()
	m, ok := f.models[modelID]
	if ok {
		m.ProjectID = projectID
	}
	f.mu.Unlock()
	if !ok {
		return nil, assets.ErrModelNotFound
	}
	return f.GetModel(ctx, modelID)
}

func (f *fakeAssets) OpenModel(ctx context.Context, id int64) (*assets.Model3D, io.ReadCloser, error) {
	m, err := f.GetModel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return m, io.NopCloser(bytes.NewReader(f.blobs[m.Key])), nil
}

func (f *fakeAssets) DeleteModel(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[id]
	if !ok {
		return assets.ErrModelNotFound
	}
	delete(f.models, id)
	delete(f.blobs, m.Key)
	return nil
}

// fakeCache records invalidations
type fakeCache struct {
	mu       sync.Mutex
	pairs    [][2]int64
	projects []int64
}

func (c *fakeCache) Invalidate(ctx context.Context, projectID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = append(c.pairs, [2]int64{projectID, userID})
	return nil
}

func (c *fakeCache) InvalidateProject(ctx context.Context, projectID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = append(c.projects, projectID)
	return nil
}

func (c *fakeCache) InvalidateUser(ctx context.Context, userID int64, projectIDs []int64) error {
	for _, projectID := range projectIDs {
		c.Invalidate(ctx, projectID, userID)
	}
	return nil
}

// testEnv wires a Server over the fakes. Project 100 has member 1 and
// client 2; project 200 has member 3.
type testEnv struct {
	server   *Server
	issuer   *auth.Issuer
	users    *fakeUsers
	projects *fakeProjects
	assets   *fakeAssets
	cache    *fakeCache
}

func newTestEnv(t *testing.T, opts ...func(*Dependencies)) *testEnv {
	t.Helper()
	keys := authtest.Keys(t)
	env := &testEnv{
		issuer:   auth.NewIssuer(keys),
		users:    &fakeUsers{Identities: authtest.Fixture(t), nextID: 500},
		projects: newFakeProjects(),
		assets:   newFakeAssets(),
		cache:    &fakeCache{},
	}
	env.projects.add(100, "Harbor", 1)
	client := int64(2)
	env.projects.projects[100].ClientID = &client
	env.projects.add(200, "Tower", 3)

	deps := Dependencies{
		Issuer:   env.issuer,
		Verifier: auth.NewVerifier(keys, env.users),
		Checker:  auth.NewAccessChecker(env.projects, env.projects, nil),
		Users:    env.users,
		Projects: env.projects,
		Assets:   env.assets,
		Cache:    env.cache,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.server = NewServer(Config{AccessTokenTTL: time.Hour, RememberMeTTL: 30 * 24 * time.Hour, MaxUploadBytes: 1 << 10}, deps)
	return env
}

// do sends a request as userID, or anonymously when userID is 0
func (e *testEnv) do(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(t, req, userID)
}

func (e *testEnv) send(t *testing.T, req *http.Request, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	if userID != 0 {
		identity, err := e.users.GetByID(context.Background(), userID)
		require.NoError(t, err)
		authtest.Bearer(req, authtest.Token(t, e.issuer, identity))
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, w, &body)
	return body["error"]
}
