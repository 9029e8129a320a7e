package gocommand

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "tenantquery.test.ok" }

type untypedMessage struct{}

func (untypedMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "tenantquery.test.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "tenantquery.test.ping" }

type fixedLister struct{}

func (fixedLister) Entity() string { return "widgets" }

func (fixedLister) List(_ context.Context, auth core.AuthContext, raw url.Values) (core.Page[string], error) {
	return core.Page[string]{
		Items:      []string{auth.TenantID + ":" + raw.Get("name")},
		Pagination: core.PaginationMeta{Page: 1, Limit: 10, Total: 1, TotalPages: 1},
	}, nil
}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(untypedMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(query.ListEntitiesMessage{}); err == nil {
		t.Fatalf("expected list message without entity to fail")
	}
}

func TestRegisterAndDispatchCommand(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	executed := 0
	cmd := command.CommandFunc[pingMessage](func(context.Context, pingMessage) error {
		executed++
		return nil
	})

	sub, err := RegisterAndSubscribe(adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), pingMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestRegisterAndQueryListEntities(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	sub, err := RegisterAndSubscribeQuery[query.ListEntitiesMessage, core.Page[string]](adapter, query.NewListEntitiesQuery[string](fixedLister{}))
	if err != nil {
		t.Fatalf("register query: %v", err)
	}
	defer sub.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	page, err := Query[query.ListEntitiesMessage, core.Page[string]](context.Background(), query.ListEntitiesMessage{
		Entity: "widgets",
		Auth:   core.AuthContext{SubjectID: "u1", TenantID: "7"},
		Params: url.Values{"name": {"bolt"}},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0] != "7:bolt" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestRegisterRequiresHandler(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	if _, err := RegisterAndSubscribe[pingMessage](adapter, nil); err == nil {
		t.Fatalf("expected error for nil command")
	}
	var missing *RegistryAdapter
	if err := missing.Initialize(); err == nil {
		t.Fatalf("expected error for unconfigured registry")
	}
}

func TestClaimRejectsDuplicateKeys(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	if err := adapter.Claim("query:notes"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := adapter.Claim(" query:notes "); err == nil {
		t.Fatalf("expected duplicate claim to fail")
	}
	adapter.Release("query:notes")
	if err := adapter.Claim("query:notes"); err != nil {
		t.Fatalf("expected claim after release, got %v", err)
	}
	if err := adapter.Claim(""); err == nil {
		t.Fatalf("expected empty key to fail")
	}
}
