package sqlstore

import (
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type widgetModel struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID       string `bun:"id,pk"`
	TenantID string `bun:"tenant_id"`
	Name     string `bun:"name"`
}

func newMockBunDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func renderSelect(t *testing.T, db *bun.DB, predicate core.Predicate) string {
	t.Helper()
	where, args, err := CompilePredicate(predicate, "?TableAlias")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return db.NewSelect().Model((*widgetModel)(nil)).Where(where, args...).String()
}

func TestCompilePredicateEmpty(t *testing.T) {
	where, args, err := CompilePredicate(core.Predicate{}, "?TableAlias")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty fragment, got %q %v", where, args)
	}
}

func TestCompilePredicateRendersTenantScope(t *testing.T) {
	db, _ := newMockBunDB(t)
	sql := renderSelect(t, db, core.Where(core.Eq("tenant_id", "7"), core.Eq("is_deleted", false)))
	if !strings.Contains(sql, `"w"."tenant_id" = '7'`) {
		t.Fatalf("expected tenant equality, got %s", sql)
	}
	if !strings.Contains(sql, `"w"."is_deleted" = FALSE`) {
		t.Fatalf("expected soft delete equality, got %s", sql)
	}
}

func TestCompilePredicateRendersOperators(t *testing.T) {
	db, _ := newMockBunDB(t)
	sql := renderSelect(t, db, core.Where(
		core.Gte("price", 10),
		core.Lte("price", 20),
		core.In("status", "active", "paused"),
		core.Eq("archived_at", nil),
		core.Condition{Column: "owner_id", Op: core.OpIsNotNull},
	))
	for _, want := range []string{
		`"w"."price" >= 10`,
		`"w"."price" <= 20`,
		`"w"."status" IN ('active', 'paused')`,
		`"w"."archived_at" IS NULL`,
		`"w"."owner_id" IS NOT NULL`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %s in %s", want, sql)
		}
	}
}

func TestCompilePredicateEmptyInMatchesNothing(t *testing.T) {
	db, _ := newMockBunDB(t)
	sql := renderSelect(t, db, core.Where(core.In("status"), core.Eq("tenant_id", "7")))
	if !strings.Contains(sql, "1 = 0") {
		t.Fatalf("expected constant false, got %s", sql)
	}
	if !strings.Contains(sql, `"w"."tenant_id" = '7'`) {
		t.Fatalf("expected placeholders to stay aligned, got %s", sql)
	}
}

func TestCompilePredicateContainsIsCaseInsensitiveAndEscaped(t *testing.T) {
	db, _ := newMockBunDB(t)
	sql := renderSelect(t, db, core.Where(core.Contains("name", "50%_OFF")))
	if !strings.Contains(sql, `LOWER("w"."name") LIKE '%50!%!_off%' ESCAPE '!'`) {
		t.Fatalf("expected escaped lower-case LIKE, got %s", sql)
	}
}

func TestCompilePredicateRendersOrGroupWithRelatedExists(t *testing.T) {
	db, _ := newMockBunDB(t)
	tags := core.Relation{Table: "widget_tags", ForeignKey: "widget_id", SoftDeleteColumn: "is_deleted"}
	predicate := core.Where(core.Eq("tenant_id", "7")).Or(
		core.Contains("name", "urg"),
		core.RelatedContains(tags, "label", "urg"),
	)
	sql := renderSelect(t, db, predicate)
	for _, want := range []string{
		`"w"."tenant_id" = '7' AND (`,
		` OR EXISTS (SELECT 1 FROM "widget_tags" AS rel1 WHERE rel1."widget_id" = "w"."id" AND rel1."is_deleted" = FALSE AND LOWER(rel1."label") LIKE '%urg%' ESCAPE '!')`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %s in %s", want, sql)
		}
	}
}

func TestCompilePredicateUnqualifiedRejectsRelations(t *testing.T) {
	predicate := core.Where(core.RelatedContains(core.Relation{Table: "tags", ForeignKey: "widget_id"}, "label", "x"))
	_, _, err := CompilePredicate(predicate, "")
	if !errors.Is(err, ErrUnsupportedPredicate) {
		t.Fatalf("expected ErrUnsupportedPredicate, got %v", err)
	}
}

func TestCompilePredicateRejectsUnknownOperator(t *testing.T) {
	_, _, err := CompilePredicate(core.Where(core.Condition{Column: "name", Op: "regex", Value: "x"}), "?TableAlias")
	if !errors.Is(err, ErrUnsupportedPredicate) {
		t.Fatalf("expected ErrUnsupportedPredicate, got %v", err)
	}
}
