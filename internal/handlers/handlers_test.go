package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"gallery/internal/changes"
	"gallery/internal/database"
	"gallery/internal/indexer"
	"gallery/internal/medialist"
	"gallery/internal/mediatypes"
	"gallery/internal/session"
)

type fakeIndexer struct {
	mu       sync.Mutex
	status   indexer.HealthStatus
	indexing bool
	runs     chan struct{}
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		status: indexer.HealthStatus{Ready: true, LastIndexed: time.Now()},
		runs:   make(chan struct{}, 1),
	}
}

func (f *fakeIndexer) GetHealthStatus() indexer.HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeIndexer) IsIndexing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexing
}

func (f *fakeIndexer) Index(context.Context) (indexer.Result, error) {
	f.runs <- struct{}{}
	return indexer.Result{Files: 1}, nil
}

type testServer struct {
	db       *database.Database
	idx      *fakeIndexer
	sessions *session.Manager
	router   *mux.Router
}

// newTestServer serves a library of n images named img00.jpg, img01.jpg...
func newTestServer(t *testing.T, n int) *testServer {
	t.Helper()

	hub := changes.NewHub()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"), hub)
	if err != nil {
		t.Fatalf("database.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for i := range n {
		saveFile(t, db, fmt.Sprintf("/lib/img%02d.jpg", i))
	}

	sessions := session.NewManager(db, hub, session.Options{WindowSize: 4, Seed: 7})
	t.Cleanup(sessions.CloseAll)

	idx := newFakeIndexer()
	h := New(db, idx, sessions)
	return &testServer{db: db, idx: idx, sessions: sessions, router: h.Router()}
}

func saveFile(t *testing.T, db *database.Database, path string) {
	t.Helper()
	err := db.SaveFile(context.Background(), &database.MediaFile{
		Path:    path,
		Kind:    mediatypes.KindForPath(path),
		Size:    100,
		ModTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SaveFile(%s) error: %v", path, err)
	}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (s *testServer) create(t *testing.T, filter string) session.View {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/sessions", filter)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", w.Code, w.Body.String())
	}
	return decode[session.View](t, w)
}

func (s *testServer) view(t *testing.T, id string) session.View {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/sessions/"+id+"?entries=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get session: status %d: %s", w.Code, w.Body.String())
	}
	return decode[session.View](t, w)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     indexer.HealthStatus
		wantCode   int
		wantStatus string
	}{
		{name: "starting", status: indexer.HealthStatus{Indexing: true}, wantCode: http.StatusServiceUnavailable, wantStatus: statusStarting},
		{name: "healthy", status: indexer.HealthStatus{Ready: true, LastIndexed: time.Now()}, wantCode: http.StatusOK, wantStatus: statusHealthy},
		{name: "degraded", status: indexer.HealthStatus{Ready: true, LastResult: indexer.Result{Errors: 2}}, wantCode: http.StatusOK, wantStatus: statusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, 0)
			s.idx.status = tt.status

			w := s.do(t, http.MethodGet, "/health", nil)
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decode[HealthResponse](t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestProbes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 0)

	if w := s.do(t, http.MethodHead, "/livez", nil); w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD /livez = %d with %d body bytes", w.Code, w.Body.Len())
	}
	if w := s.do(t, http.MethodGet, "/readyz", nil); w.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", w.Code)
	}

	s.idx.mu.Lock()
	s.idx.status.Ready = false
	s.idx.mu.Unlock()
	if w := s.do(t, http.MethodGet, "/readyz", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz before first index = %d, want 503", w.Code)
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 0)
	w := s.do(t, http.MethodGet, "/api/version", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[VersionResponse](t, w)
	if resp.Version == "" || resp.GoVersion == "" || resp.Uptime == "" {
		t.Errorf("version response = %+v", resp)
	}
}

func TestCreateSessionAndNavigate(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 6)
	v := s.create(t, `{"scope":"all"}`)

	if v.Strategy != "eager" || v.Window.Total != 6 || !v.FullyLoaded {
		t.Fatalf("created view = %+v", v)
	}
	if v.Window.Current == nil || v.Window.Current.Index != 0 {
		t.Fatalf("current = %+v, want index 0", v.Window.Current)
	}

	steps := []struct {
		method string
		path   string
		body   interface{}
		want   int
	}{
		{http.MethodPost, "/next", nil, 1},
		{http.MethodPost, "/next", nil, 2},
		{http.MethodPost, "/prev", nil, 1},
		{http.MethodPost, "/goto", `{"index":4}`, 4},
		{http.MethodPost, "/goto", `{"name":"img02.jpg"}`, 2},
	}
	for _, step := range steps {
		w := s.do(t, step.method, "/api/sessions/"+v.ID+step.path, step.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d: %s", step.path, w.Code, w.Body.String())
		}
		resp := decode[NavigateResponse](t, w)
		if !resp.Moved || resp.Window.Current == nil || resp.Window.Current.Index != step.want {
			t.Fatalf("%s %v: moved=%v current=%+v, want index %d", step.path, step.body, resp.Moved, resp.Window.Current, step.want)
		}
	}

	w := s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/goto", `{"index":99}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("goto unloaded index = %d, want 404", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/goto", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("goto without target = %d, want 400", w.Code)
	}
}

func TestNavigateAtEnd(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 2)
	v := s.create(t, `{"scope":"all"}`)

	w := s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/prev", nil)
	resp := decode[NavigateResponse](t, w)
	if resp.Moved {
		t.Error("prev from the first entry should not move")
	}
}

func TestShuffleVisitsEveryEntry(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 5)
	v := s.create(t, `{"scope":"all"}`)

	seen := make(map[int]bool)
	for range 5 {
		w := s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/shuffle", nil)
		resp := decode[NavigateResponse](t, w)
		if !resp.Moved || resp.Window.Current == nil {
			t.Fatalf("shuffle did not move: %s", w.Body.String())
		}
		seen[resp.Window.Current.Index] = true
	}
	if len(seen) != 5 {
		t.Errorf("one shuffle cycle visited %d distinct entries, want 5", len(seen))
	}
}

func TestCreateWindowedSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 20)
	v := s.create(t, `{"scope":"all","targetIndex":10}`)

	if v.Strategy != "windowed" {
		t.Errorf("Strategy = %q, want windowed", v.Strategy)
	}
	if v.Window.Current == nil || v.Window.Current.Index != 10 {
		t.Errorf("current = %+v, want index 10", v.Window.Current)
	}
	if v.Window.Total != 20 {
		t.Errorf("total = %d, want 20", v.Window.Total)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 3)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed json", body: `{"scope":`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"scope":"all","colour":"red"}`, want: http.StatusBadRequest},
		{name: "unknown scope", body: `{"scope":"planets"}`, want: http.StatusBadRequest},
		{name: "tag scope without tag", body: `{"scope":"tag"}`, want: http.StatusBadRequest},
		{name: "empty collection", body: `{"scope":"favorites"}`, want: http.StatusNotFound},
		{name: "target past the end", body: `{"scope":"all","targetIndex":3}`, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		w := s.do(t, http.MethodPost, "/api/sessions", tt.body)
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d: %s", tt.name, w.Code, tt.want, w.Body.String())
		}
	}
	if s.sessions.Len() != 0 {
		t.Errorf("failed creates left %d sessions open", s.sessions.Len())
	}
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 1)
	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodPost, "/api/sessions/nope/next"},
		{http.MethodDelete, "/api/sessions/nope"},
		{http.MethodDelete, "/api/sessions/nope/entries/0"},
	} {
		if w := s.do(t, req.method, req.path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", req.method, req.path, w.Code)
		}
	}
}

func TestCloseSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 2)
	v := s.create(t, `{"scope":"all"}`)

	if w := s.do(t, http.MethodDelete, "/api/sessions/"+v.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("close = %d, want 204", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after close = %d, want 404", w.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 4)
	v := s.create(t, `{"scope":"all"}`)
	other := s.create(t, `{"scope":"all"}`)

	w := s.do(t, http.MethodDelete, "/api/sessions/"+v.ID+"/entries/1?underlying=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", w.Code, w.Body.String())
	}

	got := s.view(t, v.ID)
	if got.Window.Total != 3 || len(got.Entries) != 3 {
		t.Fatalf("after delete: total=%d entries=%d, want 3", got.Window.Total, len(got.Entries))
	}
	for i, e := range got.Entries {
		if e.Index != i {
			t.Errorf("entry %d has index %d", i, e.Index)
		}
		if strings.HasSuffix(e.Path, "img01.jpg") {
			t.Error("deleted entry is still listed")
		}
	}
	if got.NeedsUpdate {
		t.Error("a session's own delete should not mark it stale")
	}

	if n, err := s.db.Count(context.Background(), medialist.Filter{Scope: medialist.ScopeAll}); err != nil || n != 3 {
		t.Errorf("library count = %d, %v, want 3", n, err)
	}
	if !s.view(t, other.ID).NeedsUpdate {
		t.Error("other sessions should be marked stale by the delete")
	}

	if w := s.do(t, http.MethodDelete, "/api/sessions/"+v.ID+"/entries/9", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete unloaded index = %d, want 404", w.Code)
	}
}

func TestInsertEntry(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 2)
	v := s.create(t, `{"scope":"all"}`)
	saveFile(t, s.db, "/lib/zz.jpg")

	w := s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/entries", InsertRequest{Path: "/lib/zz.jpg"})
	if w.Code != http.StatusOK {
		t.Fatalf("append = %d: %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/entries", InsertRequest{Path: "/elsewhere/new.jpg", Front: true})
	if w.Code != http.StatusOK {
		t.Fatalf("prepend = %d: %s", w.Code, w.Body.String())
	}

	got := s.view(t, v.ID)
	if len(got.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(got.Entries))
	}
	if got.Entries[0].Path != "/elsewhere/new.jpg" || got.Entries[0].ID >= 0 {
		t.Errorf("prepended entry = %+v, want a local entry", got.Entries[0])
	}
	if got.Entries[3].Path != "/lib/zz.jpg" || got.Entries[3].ID <= 0 {
		t.Errorf("appended entry = %+v, want the library entry", got.Entries[3])
	}

	if w := s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/entries", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("insert without path = %d, want 400", w.Code)
	}
}

func TestSetEntryState(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 3)
	v := s.create(t, `{"scope":"all"}`)

	w := s.do(t, http.MethodPut, "/api/sessions/"+v.ID+"/entries/2/state", `{"state":"loading"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set state = %d: %s", w.Code, w.Body.String())
	}
	if got := s.view(t, v.ID).Entries[2].State; got != medialist.StateLoading {
		t.Errorf("state = %v, want loading", got)
	}

	if w := s.do(t, http.MethodPut, "/api/sessions/"+v.ID+"/entries/2/state", `{"state":"sparkling"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown state = %d, want 400", w.Code)
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 3)
	v := s.create(t, `{"scope":"all"}`)
	s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/goto", `{"name":"img01.jpg"}`)

	saveFile(t, s.db, "/lib/img00a.jpg")
	if !s.view(t, v.ID).NeedsUpdate {
		t.Fatal("insert should mark the session stale")
	}

	w := s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/reload?entries=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reload = %d: %s", w.Code, w.Body.String())
	}
	got := decode[session.View](t, w)
	if got.NeedsUpdate || got.Window.Total != 4 {
		t.Errorf("after reload: stale=%v total=%d, want false 4", got.NeedsUpdate, got.Window.Total)
	}
	if got.Window.Current == nil || got.Window.Current.Filename() != "img01.jpg" {
		t.Errorf("current after reload = %+v, want img01.jpg", got.Window.Current)
	}
	if got.Window.Current.Index != 2 {
		t.Errorf("img01.jpg index = %d, want 2 after the insert before it", got.Window.Current.Index)
	}
}

func TestRenamePatchesOpenSessions(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 2)
	v := s.create(t, `{"scope":"all"}`)

	w := s.do(t, http.MethodPost, "/api/files/rename", RenameRequest{OldPath: "/lib/img01.jpg", NewPath: "/lib/renamed.jpg"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d: %s", w.Code, w.Body.String())
	}
	if got := s.view(t, v.ID).Entries[1].Path; got != "/lib/renamed.jpg" {
		t.Errorf("entry path = %q, want the renamed path", got)
	}

	w = s.do(t, http.MethodPost, "/api/files/rename", RenameRequest{OldPath: "/lib/missing.jpg", NewPath: "/lib/x.jpg"})
	if w.Code != http.StatusNotFound {
		t.Errorf("rename of unknown file = %d, want 404", w.Code)
	}
}

func TestFavoritesAndTags(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 3)

	if w := s.do(t, http.MethodPost, "/api/favorites", PathRequest{Path: "/lib/img02.jpg"}); w.Code != http.StatusOK {
		t.Fatalf("add favorite = %d", w.Code)
	}
	w := s.do(t, http.MethodGet, "/api/favorites/check?path=/lib/img02.jpg", nil)
	if !decode[map[string]bool](t, w)["isFavorite"] {
		t.Error("img02.jpg should be a favorite")
	}

	fav := s.create(t, `{"scope":"favorites"}`)
	if fav.Window.Total != 1 {
		t.Errorf("favorites total = %d, want 1", fav.Window.Total)
	}

	if w := s.do(t, http.MethodPost, "/api/tags/file", TagRequest{Path: "/lib/img00.jpg", Tag: "Beach"}); w.Code != http.StatusOK {
		t.Fatalf("tag file = %d", w.Code)
	}
	tags := decode[[]database.Tag](t, s.do(t, http.MethodGet, "/api/tags", nil))
	if len(tags) != 1 || tags[0].Name != "Beach" || tags[0].ItemCount != 1 {
		t.Errorf("tags = %+v", tags)
	}

	tagged := s.create(t, `{"scope":"tag","tag":"beach"}`)
	if tagged.Window.Total != 1 {
		t.Errorf("tag collection total = %d, want 1", tagged.Window.Total)
	}

	if w := s.do(t, http.MethodDelete, "/api/tags/file", TagRequest{Path: "/lib/img00.jpg", Tag: "beach"}); w.Code != http.StatusOK {
		t.Errorf("untag = %d", w.Code)
	}
	if !s.view(t, tagged.ID).NeedsUpdate {
		t.Error("untagging should mark the tag session stale")
	}

	if w := s.do(t, http.MethodDelete, "/api/favorites", PathRequest{Path: "/lib/img02.jpg"}); w.Code != http.StatusOK {
		t.Errorf("remove favorite = %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/favorites", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("favorite without path = %d, want 400", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 3)
	s.create(t, `{"scope":"all"}`)

	resp := decode[StatsResponse](t, s.do(t, http.MethodGet, "/api/stats", nil))
	if resp.TotalImages != 3 || resp.Sessions != 1 {
		t.Errorf("stats = %+v", resp)
	}
}

func TestTriggerReindex(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 0)

	s.idx.mu.Lock()
	s.idx.indexing = true
	s.idx.mu.Unlock()
	if w := s.do(t, http.MethodPost, "/api/reindex", nil); w.Code != http.StatusConflict {
		t.Errorf("reindex while indexing = %d, want 409", w.Code)
	}

	s.idx.mu.Lock()
	s.idx.indexing = false
	s.idx.mu.Unlock()
	if w := s.do(t, http.MethodPost, "/api/reindex", nil); w.Code != http.StatusAccepted {
		t.Fatalf("reindex = %d, want 202", w.Code)
	}
	select {
	case <-s.idx.runs:
	case <-time.After(10 * time.Second):
		t.Fatal("reindex did not run")
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", session.ErrNotFound), http.StatusNotFound},
		{medialist.ErrInvalidFilter, http.StatusBadRequest},
		{medialist.ErrEmptyCollection, http.StatusNotFound},
		{medialist.ErrWindowEdge, http.StatusConflict},
		{fmt.Errorf("count: %w", medialist.ErrSourceUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
