package adapters_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tenantquery/adapters/ginadapter"
	"github.com/goliatone/go-tenantquery/adapters/gocommand"
	"github.com/goliatone/go-tenantquery/adapters/gologger"
	"github.com/goliatone/go-tenantquery/audit"
	"github.com/goliatone/go-tenantquery/auth"
	tqcommand "github.com/goliatone/go-tenantquery/command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/query"
	"github.com/goliatone/go-tenantquery/tenancy"
)

var compatNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRuntimeCompatibility_GinGoCommandGoLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}
	if named := gologger.Named("tenantquery.command", provider, nil); named != logger {
		t.Fatalf("expected provider logger to win")
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Issuer:   "tenantquery-tests",
		Audience: "tenantquery-api",
		Secret:   "compat-secret-with-enough-entropy",
	}, auth.WithClock(func() time.Time { return compatNow }))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	store := &compatStore{rows: map[string]*compatRow{
		"w-1": {id: "w-1", tenantID: "7"},
		"w-2": {id: "w-2", tenantID: "8"},
	}}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	deleteCmd := tqcommand.NewSoftDeleteEntityCommand[*compatRow](
		"widgets",
		store,
		tenancy.New(tenancy.Config{}),
		audit.NewFactory(audit.WithClock(func() time.Time { return compatNow })),
		tqcommand.WithLoggerProvider(provider),
	)
	deleteSub, err := gocommand.RegisterAndSubscribe[tqcommand.SoftDeleteEntityMessage](adapter, deleteCmd)
	if err != nil {
		t.Fatalf("register soft delete: %v", err)
	}
	defer deleteSub.Unsubscribe()

	listSub, err := gocommand.RegisterAndSubscribeQuery[query.ListEntitiesMessage, core.Page[string]](adapter, query.NewListEntitiesQuery[string](store))
	if err != nil {
		t.Fatalf("register list query: %v", err)
	}
	defer listSub.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	router := gin.New()
	api := router.Group("/api", ginadapter.RequireAuth(verifier, ginadapter.WithLoggerProvider(provider)))
	api.GET("/widgets", ginadapter.ListHandler[string](dispatchLister{entity: "widgets"}))
	api.DELETE("/widgets/:id", ginadapter.SoftDeleteHandler("widgets", dispatchDeleter{}, tenancy.Policy{}))

	issued, err := verifier.IssueAccess(auth.AccessInput{SubjectID: "admin-7", TenantID: "7", Role: "TENANT_ADMIN"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	bearer := "Bearer " + issued.Token

	listReq := httptest.NewRequest(http.MethodGet, "/api/widgets?page=1", nil)
	listReq.Header.Set("Authorization", bearer)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d (%s)", listRec.Code, listRec.Body.String())
	}
	var page core.Page[string]
	if err := json.Unmarshal(listRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0] != "w-1" {
		t.Fatalf("expected only tenant 7 rows, got %#v", page.Items)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/widgets/w-1", nil)
	delReq.Header.Set("Authorization", bearer)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d (%s)", delRec.Code, delRec.Body.String())
	}
	if store.deletedBy["w-1"] != "admin-7" {
		t.Fatalf("expected audit actor on delete, got %#v", store.deletedBy)
	}

	crossReq := httptest.NewRequest(http.MethodDelete, "/api/widgets/w-2", nil)
	crossReq.Header.Set("Authorization", bearer)
	crossRec := httptest.NewRecorder()
	router.ServeHTTP(crossRec, crossReq)
	if crossRec.Code == http.StatusNoContent {
		t.Fatalf("expected cross tenant delete to fail")
	}
	if _, deleted := store.deletedBy["w-2"]; deleted {
		t.Fatalf("cross tenant row must not be deleted")
	}
	if logger.count("warn") == 0 {
		t.Fatalf("expected rejected delete to be logged through the provider logger")
	}

	anonRec := httptest.NewRecorder()
	router.ServeHTTP(anonRec, httptest.NewRequest(http.MethodGet, "/api/widgets", nil))
	if anonRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", anonRec.Code)
	}
}

type dispatchLister struct {
	entity string
}

func (l dispatchLister) List(ctx context.Context, authCtx core.AuthContext, raw url.Values) (core.Page[string], error) {
	return gocommand.Query[query.ListEntitiesMessage, core.Page[string]](ctx, query.ListEntitiesMessage{
		Entity: l.entity,
		Auth:   authCtx,
		Params: raw,
	})
}

type dispatchDeleter struct{}

func (dispatchDeleter) Execute(ctx context.Context, msg tqcommand.SoftDeleteEntityMessage) error {
	return gocommand.Dispatch(ctx, msg)
}

type compatRow struct {
	id       string
	tenantID string
}

func (r *compatRow) OwnerTenantID() string { return r.tenantID }

type compatStore struct {
	mu        sync.Mutex
	rows      map[string]*compatRow
	deletedBy map[string]string
}

func (s *compatStore) Entity() string { return "widgets" }

func (s *compatStore) List(_ context.Context, authCtx core.AuthContext, _ url.Values) (core.Page[string], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []string{}
	for id, row := range s.rows {
		if row.tenantID == authCtx.TenantID {
			items = append(items, id)
		}
	}
	return core.Page[string]{
		Items:      items,
		Pagination: core.PaginationMeta{Page: 1, Limit: 20, Total: len(items), TotalPages: 1},
	}, nil
}

func (s *compatStore) GetByID(_ context.Context, id string) (*compatRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, core.NewError(core.KindNotFound, core.CodeNotFound, "")
	}
	return row, nil
}

func (s *compatStore) SoftDelete(_ context.Context, id string, _ core.Predicate, fragment audit.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deletedBy == nil {
		s.deletedBy = map[string]string{}
	}
	s.deletedBy[id] = fragment.By()
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct {
	mu     sync.Mutex
	levels map[string]int
}

func (l *compatLogger) record(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.levels == nil {
		l.levels = map[string]int{}
	}
	l.levels[level]++
}

func (l *compatLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.levels[level]
}

func (l *compatLogger) Trace(string, ...any)                    { l.record("trace") }
func (l *compatLogger) Debug(string, ...any)                    { l.record("debug") }
func (l *compatLogger) Info(string, ...any)                     { l.record("info") }
func (l *compatLogger) Warn(string, ...any)                     { l.record("warn") }
func (l *compatLogger) Error(string, ...any)                    { l.record("error") }
func (l *compatLogger) Fatal(string, ...any)                    { l.record("fatal") }
func (l *compatLogger) WithContext(context.Context) glog.Logger { return l }
