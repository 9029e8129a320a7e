package tenantquery_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	tenantquery "github.com/goliatone/go-tenantquery"
	"github.com/goliatone/go-tenantquery/adapters/gocommand"
	"github.com/goliatone/go-tenantquery/audit"
	"github.com/goliatone/go-tenantquery/auth"
	tqcommand "github.com/goliatone/go-tenantquery/command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/filter"
	"github.com/goliatone/go-tenantquery/listing"
	"github.com/goliatone/go-tenantquery/migrations"
	"github.com/goliatone/go-tenantquery/paging"
	"github.com/goliatone/go-tenantquery/query"
	sqlstore "github.com/goliatone/go-tenantquery/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var setupNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() tenantquery.Config {
	return tenantquery.Config{
		Tokens: core.TokenConfig{
			Issuer:   "tenantquery-tests",
			Audience: "tenantquery-api",
			Secret:   "setup-secret-with-enough-entropy",
		},
	}
}

func TestSetupResolvesConfigAndWiresComponents(t *testing.T) {
	cfg := testConfig()
	cfg.Pagination.MaxLimit = 50

	rt, err := tenantquery.Setup(cfg, tenantquery.WithClock(func() time.Time { return setupNow }))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	resolved := rt.Config()
	if resolved.Pagination.MaxLimit != 50 {
		t.Fatalf("expected runtime override max_limit=50, got %d", resolved.Pagination.MaxLimit)
	}
	if resolved.Pagination.DefaultLimit != 10 || resolved.Tenancy.TenantField != "tenant_id" {
		t.Fatalf("expected defaults to fill unset values, got %#v", resolved)
	}
	if rt.Pagination().MaxLimit != 50 {
		t.Fatalf("expected pagination defaults from config")
	}
	if rt.Repositories() != nil {
		t.Fatalf("expected no repositories without persistence")
	}

	want := []string{core.FamilyCredential, core.FamilyPostgres, core.FamilySQLite, core.FamilyMySQL}
	if got := rt.Normalizer().Families(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected families %v, got %v", want, got)
	}

	issued, err := rt.Verifier().IssueAccess(auth.AccessInput{SubjectID: "user-1", TenantID: "7", Role: "TENANT_ADMIN"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	authCtx, err := rt.Authenticate(context.Background(), "Bearer "+issued.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authCtx.SubjectID != "user-1" || authCtx.TenantID != "7" {
		t.Fatalf("unexpected auth context: %#v", authCtx)
	}

	stamp := rt.Audit().OnCreate(authCtx, "10.0.0.1")
	if !stamp.CreatedAt.Equal(setupNow) || stamp.CreatedBy != "user-1" {
		t.Fatalf("expected audit factory to use runtime clock, got %#v", stamp)
	}
}

func TestSetupRejectsMissingTokenSecret(t *testing.T) {
	if _, err := tenantquery.Setup(tenantquery.Config{}); err == nil {
		t.Fatalf("expected missing token settings to fail setup")
	}
}

func TestSetupRejectsInvalidPagination(t *testing.T) {
	cfg := testConfig()
	cfg.Pagination.DefaultLimit = 500
	if _, err := tenantquery.Setup(cfg); err == nil {
		t.Fatalf("expected default_limit above max_limit to fail")
	}
}

func TestSetupRevocationChecksThroughPersistence(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	rt, err := tenantquery.Setup(testConfig(),
		tenantquery.WithPersistenceClient(client),
		tenantquery.WithClock(func() time.Time { return time.Now() }),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if rt.Repositories() == nil {
		t.Fatalf("expected repositories from persistence client")
	}

	issued, err := rt.Verifier().IssueAccess(auth.AccessInput{SubjectID: "user-1", TenantID: "7", Role: "TENANT_ADMIN"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ctx := context.Background()
	if _, err := rt.Authenticate(ctx, "Bearer "+issued.Token); err != nil {
		t.Fatalf("authenticate before revoke: %v", err)
	}

	if err := rt.Repositories().Revocations().Revoke(ctx, sqlstore.Revocation{
		TokenID:   issued.TokenID,
		SubjectID: "user-1",
		TenantID:  "7",
		Reason:    "logout",
		ExpiresAt: &issued.ExpiresAt,
	}); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err = rt.Authenticate(ctx, "Bearer "+issued.Token)
	if !core.HasCode(err, core.CodeTokenRevoked) {
		t.Fatalf("expected TOKEN_REVOKED after revoke, got %v", err)
	}
}

type note struct {
	ID       string
	TenantID string
	Title    string
}

func (n *note) OwnerTenantID() string { return n.TenantID }
func (n *note) RowID() string         { return n.ID }

type memo struct {
	ID       string
	TenantID string
	Body     string
}

func (m *memo) OwnerTenantID() string { return m.TenantID }
func (m *memo) RowID() string         { return m.ID }

type memoryRow interface {
	OwnerTenantID() string
	RowID() string
}

type memoryStore[T memoryRow] struct {
	rows      []T
	lastFind  core.QueryOptions
	deletedBy map[string]string
}

func (m *memoryStore[T]) Find(_ context.Context, opts core.QueryOptions) ([]T, error) {
	m.lastFind = opts
	out := []T{}
	for _, row := range m.rows {
		if tenantOf(opts.Predicate) == "" || row.OwnerTenantID() == tenantOf(opts.Predicate) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryStore[T]) Count(_ context.Context, predicate core.Predicate) (int, error) {
	count := 0
	for _, row := range m.rows {
		if tenantOf(predicate) == "" || row.OwnerTenantID() == tenantOf(predicate) {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore[T]) GetByID(_ context.Context, id string) (T, error) {
	for _, row := range m.rows {
		if row.RowID() == id {
			return row, nil
		}
	}
	var zero T
	return zero, core.NewError(core.KindNotFound, core.CodeNotFound, "")
}

func (m *memoryStore[T]) SoftDelete(_ context.Context, id string, _ core.Predicate, fragment audit.Fragment) error {
	if m.deletedBy == nil {
		m.deletedBy = map[string]string{}
	}
	m.deletedBy[id] = fragment.By()
	return nil
}

func tenantOf(predicate core.Predicate) string {
	for _, condition := range predicate.Conditions {
		if condition.Column == "tenant_id" {
			return fmt.Sprint(condition.Value)
		}
	}
	return ""
}

func registerFacade[T memoryRow](t *testing.T, adapter *gocommand.RegistryAdapter, facade *tenantquery.Facade[T]) {
	t.Helper()
	subs, err := facade.Register(adapter)
	if err != nil {
		t.Fatalf("register %s: %v", facade.Entity(), err)
	}
	t.Cleanup(func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	})
}

func TestFacadesShareOneDispatcher(t *testing.T) {
	rt, err := tenantquery.Setup(testConfig(), tenantquery.WithClock(func() time.Time { return setupNow }))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	notes := &memoryStore[*note]{rows: []*note{
		{ID: "n1", TenantID: "7", Title: "alpha"},
		{ID: "n2", TenantID: "8", Title: "beta"},
	}}
	memos := &memoryStore[*memo]{rows: []*memo{
		{ID: "m1", TenantID: "7", Body: "first"},
		{ID: "m2", TenantID: "7", Body: "second"},
	}}
	notesFacade, err := tenantquery.NewFacade[*note](rt, notes, listing.Config[*note]{
		Entity: "notes",
		Sort:   paging.SortRules{DefaultField: "created_at", AllowList: []string{"created_at", "title"}},
		FilterSchema: filter.Schema{
			Fields: map[string]filter.Field{"title": {Kind: filter.KindString, Column: "title"}},
		},
	})
	if err != nil {
		t.Fatalf("new notes facade: %v", err)
	}
	memosFacade, err := tenantquery.NewFacade[*memo](rt, memos, listing.Config[*memo]{
		Entity: "memos",
		Sort:   paging.SortRules{DefaultField: "created_at", AllowList: []string{"created_at"}},
	})
	if err != nil {
		t.Fatalf("new memos facade: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	registerFacade(t, adapter, notesFacade)
	registerFacade(t, adapter, memosFacade)
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ctx := context.Background()
	caller := core.AuthContext{SubjectID: "user-1", TenantID: "7", Role: "TENANT_ADMIN"}
	notePage, err := gocommand.Query[query.ListMessage[*note], core.Page[*note]](ctx,
		query.NewListMessage[*note]("notes", caller, url.Values{"page": {"1"}}))
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notePage.Items) != 1 || notePage.Items[0].ID != "n1" {
		t.Fatalf("expected tenant scoped notes page, got %#v", notePage.Items)
	}
	if notes.lastFind.Take != rt.Config().Pagination.DefaultLimit {
		t.Fatalf("expected runtime pagination defaults, got take=%d", notes.lastFind.Take)
	}

	memoPage, err := gocommand.Query[query.ListMessage[*memo], core.Page[*memo]](ctx,
		query.NewListMessage[*memo]("memos", caller, nil))
	if err != nil {
		t.Fatalf("list memos: %v", err)
	}
	if len(memoPage.Items) != 2 || memoPage.Pagination.Total != 2 {
		t.Fatalf("expected both memos, got %#v", memoPage)
	}

	if err := gocommand.Dispatch(ctx, tqcommand.SoftDeleteEntityMessage{Entity: "notes", ID: "n1", Auth: caller}); err != nil {
		t.Fatalf("soft delete note: %v", err)
	}
	if err := gocommand.Dispatch(ctx, tqcommand.SoftDeleteEntityMessage{Entity: "memos", ID: "m2", Auth: caller}); err != nil {
		t.Fatalf("soft delete memo: %v", err)
	}
	if notes.deletedBy["n1"] != "user-1" || len(notes.deletedBy) != 1 {
		t.Fatalf("expected only n1 deleted from notes, got %#v", notes.deletedBy)
	}
	if memos.deletedBy["m2"] != "user-1" || len(memos.deletedBy) != 1 {
		t.Fatalf("expected only m2 deleted from memos, got %#v", memos.deletedBy)
	}
}

func TestFacadeRegisterRejectsDuplicateEntity(t *testing.T) {
	rt, err := tenantquery.Setup(testConfig())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	cfg := listing.Config[*note]{Entity: "notes", Sort: paging.SortRules{DefaultField: "created_at"}}
	first, err := tenantquery.NewFacade[*note](rt, &memoryStore[*note]{}, cfg)
	if err != nil {
		t.Fatalf("first facade: %v", err)
	}
	second, err := tenantquery.NewFacade[*note](rt, &memoryStore[*note]{}, cfg)
	if err != nil {
		t.Fatalf("second facade: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	registerFacade(t, adapter, first)
	if subs, err := second.Register(adapter); err == nil {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		t.Fatalf("expected second facade for the same model to be rejected")
	}
}

func TestFacadeRequiresRuntimeAndStore(t *testing.T) {
	if _, err := tenantquery.NewFacade[*note](nil, &memoryStore[*note]{}, listing.Config[*note]{Entity: "notes"}); err == nil {
		t.Fatalf("expected nil runtime to fail")
	}
	rt, err := tenantquery.Setup(testConfig())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := tenantquery.NewFacade[*note](rt, nil, listing.Config[*note]{Entity: "notes"}); err == nil {
		t.Fatalf("expected nil store to fail")
	}
}

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool                { return false }
func (c testPersistenceConfig) GetDriver() string             { return c.driver }
func (c testPersistenceConfig) GetServer() string             { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string     { return "go-tenantquery-tests" }

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:tenantquery-setup-%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	ctx := context.Background()
	if _, err := migrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithDialects(migrations.DialectSQLite)); err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}
	return client, func() { _ = client.Close() }
}
