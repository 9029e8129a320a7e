package ginadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-tenantquery/auth"
	"github.com/goliatone/go-tenantquery/command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/tenancy"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(auth.Config{
		Issuer:   "tenantquery-tests",
		Audience: "tenantquery-api",
		Secret:   "test-secret-with-enough-entropy",
	}, auth.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorEnvelope {
	t.Helper()
	var env core.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	router := gin.New()
	router.GET("/widgets", RequireAuth(newVerifier(t), WithClock(func() time.Time { return fixedNow })), func(c *gin.Context) {
		t.Fatalf("handler must not run without credentials")
	})

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.ErrorCode != core.CodeNoHeader {
		t.Fatalf("unexpected envelope: %#v", env)
	}
	if env.CorrelationID != "req-1" || env.Path != "/widgets" {
		t.Fatalf("expected correlation and path, got %#v", env)
	}
	if env.Timestamp != fixedNow.Format(time.RFC3339Nano) {
		t.Fatalf("expected clock timestamp, got %q", env.Timestamp)
	}
}

func TestRequireAuthStoresAuthContext(t *testing.T) {
	v := newVerifier(t)
	issued, err := v.IssueAccess(auth.AccessInput{SubjectID: "user-1", TenantID: "7", Role: "TENANT_ADMIN"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var fromGin, fromRequest core.AuthContext
	router := gin.New()
	router.GET("/me", RequireAuth(v), func(c *gin.Context) {
		fromGin, _ = AuthFrom(c)
		fromRequest, _ = core.AuthFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if fromGin.SubjectID != "user-1" || fromGin.TenantID != "7" {
		t.Fatalf("unexpected gin auth: %#v", fromGin)
	}
	if fromRequest.SubjectID != "user-1" {
		t.Fatalf("expected auth on request context, got %#v", fromRequest)
	}
}

func TestRequireAuthRejectsWrongScheme(t *testing.T) {
	router := gin.New()
	router.GET("/widgets", RequireAuth(newVerifier(t)), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.ErrorCode != core.CodeInvalidScheme {
		t.Fatalf("expected INVALID_SCHEME, got %s", env.ErrorCode)
	}
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	router := gin.New()
	router.GET("/boom", func(c *gin.Context) {
		WriteError(c, errors.New("pq: password authentication failed for user admin"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.ErrorCode != core.CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %s", env.ErrorCode)
	}
	if env.Message == "" || env.Message == "pq: password authentication failed for user admin" {
		t.Fatalf("internal message must be generic, got %q", env.Message)
	}
}

type pageLister struct {
	gotAuth core.AuthContext
	gotRaw  url.Values
	err     error
}

func (l *pageLister) List(_ context.Context, authCtx core.AuthContext, raw url.Values) (core.Page[string], error) {
	l.gotAuth = authCtx
	l.gotRaw = raw
	if l.err != nil {
		return core.Page[string]{}, l.err
	}
	return core.Page[string]{
		Items:      []string{"a", "b"},
		Pagination: core.PaginationMeta{Page: 1, Limit: 2, Total: 3, TotalPages: 2, HasNext: true},
	}, nil
}

func withAuth(authCtx core.AuthContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyAuth, authCtx)
		c.Next()
	}
}

func TestListHandlerForwardsQueryAndWritesPage(t *testing.T) {
	lister := &pageLister{}
	router := gin.New()
	router.GET("/widgets", withAuth(core.AuthContext{SubjectID: "user-1", TenantID: "7"}), ListHandler[string](lister))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets?page=1&limit=2&status=active", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if lister.gotAuth.TenantID != "7" || lister.gotRaw.Get("status") != "active" {
		t.Fatalf("unexpected lister input: %#v %#v", lister.gotAuth, lister.gotRaw)
	}
	var page core.Page[string]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 2 || !page.Pagination.HasNext || page.Pagination.Total != 3 {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestListHandlerRequiresAuth(t *testing.T) {
	router := gin.New()
	router.GET("/widgets", ListHandler[string](&pageLister{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListHandlerWritesClassifiedError(t *testing.T) {
	lister := &pageLister{err: core.NewError(core.KindValidation, core.CodeValidationFailed, "bad filter").
		WithDetail("status", "Unknown filter field")}
	router := gin.New()
	router.GET("/widgets", withAuth(core.AuthContext{SubjectID: "user-1", TenantID: "7"}), ListHandler[string](lister))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets?status=x", nil))

	if rec.Code != http.StatusUnprocessableEntity && rec.Code != http.StatusBadRequest {
		t.Fatalf("expected validation status, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.ErrorCode != core.CodeValidationFailed || len(env.Details["status"]) != 1 {
		t.Fatalf("unexpected envelope: %#v", env)
	}
}

type recordingDeleter struct {
	got command.SoftDeleteEntityMessage
	err error
}

func (d *recordingDeleter) Execute(_ context.Context, msg command.SoftDeleteEntityMessage) error {
	d.got = msg
	return d.err
}

func TestSoftDeleteHandlerBuildsMessage(t *testing.T) {
	deleter := &recordingDeleter{}
	router := gin.New()
	router.DELETE("/widgets/:id",
		withAuth(core.AuthContext{SubjectID: "user-1", TenantID: "7"}),
		SoftDeleteHandler("widgets", deleter, tenancy.Policy{}),
	)

	req := httptest.NewRequest(http.MethodDelete, "/widgets/w-1", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if deleter.got.Entity != "widgets" || deleter.got.ID != "w-1" || deleter.got.ClientIP != "10.0.0.5" {
		t.Fatalf("unexpected message: %#v", deleter.got)
	}
}

func TestSoftDeleteHandlerWritesForbidden(t *testing.T) {
	deleter := &recordingDeleter{err: core.NewError(core.KindForbidden, core.CodeTenantMismatch, "")}
	router := gin.New()
	router.DELETE("/widgets/:id",
		withAuth(core.AuthContext{SubjectID: "user-1", TenantID: "7"}),
		SoftDeleteHandler("widgets", deleter, tenancy.Policy{}),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/widgets/w-9", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.ErrorCode != core.CodeTenantMismatch {
		t.Fatalf("expected TENANT_MISMATCH, got %s", env.ErrorCode)
	}
}
