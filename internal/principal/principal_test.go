package principal

import (
	"errors"
	"sort"
	"testing"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" admin ")
	if err != nil || k != KindAdmin {
		t.Fatalf("expected ADMIN, got %q err=%v", k, err)
	}
	if _, err := ParseKind("broker"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewRejectsInvalidHierarchy(t *testing.T) {
	cases := []struct {
		name   string
		id     string
		kind   Kind
		parent string
	}{
		{"empty id", "", KindAdmin, ""},
		{"admin with parent", "a1", KindAdmin, "root"},
		{"user without parent", "u1", KindUser, ""},
		{"user owning itself", "u1", KindUser, "u1"},
		{"unknown kind", "x", Kind("BROKER"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.kind, tc.parent); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAuthorityForUser(t *testing.T) {
	u, _ := User("u1", "a1")
	got := AuthorityFor(u, "root").IDs()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a1" || got[1] != "root" {
		t.Fatalf("unexpected authority %v", got)
	}
	set := AuthorityFor(u, "root")
	if set.Contains("u1") {
		t.Fatal("user must not approve its own request")
	}
	if set.Contains("a2") {
		t.Fatal("unrelated admin must not approve")
	}
}

func TestAuthorityForAdmin(t *testing.T) {
	a, _ := Admin("a1")
	set := AuthorityFor(a, "root")
	if !set.Contains("root") || set.Contains("a1") || len(set) != 1 {
		t.Fatalf("unexpected authority %v", set.IDs())
	}
}

func TestAuthorityForSuperAdminIsEmpty(t *testing.T) {
	root, _ := SuperAdmin("root")
	if set := AuthorityFor(root, "root"); len(set) != 0 {
		t.Fatalf("expected empty authority, got %v", set.IDs())
	}
}

func TestCounterparty(t *testing.T) {
	u, _ := User("u1", "a1")
	if id, ok := Counterparty(u, "root"); !ok || id != "a1" {
		t.Fatalf("expected a1, got %q", id)
	}
	a, _ := Admin("a1")
	if id, ok := Counterparty(a, "root"); !ok || id != "root" {
		t.Fatalf("expected root, got %q", id)
	}
	root, _ := SuperAdmin("root")
	if _, ok := Counterparty(root, "root"); ok {
		t.Fatal("super admin has no counterparty")
	}
}
