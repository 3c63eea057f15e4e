package principal

import (
	"strings"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
)

// Kind is the closed set of principal tiers.
type Kind string

const (
	KindSuperAdmin Kind = "SUPER_ADMIN"
	KindAdmin      Kind = "ADMIN"
	KindUser       Kind = "USER"
)

// ParseKind maps a free-form discriminator onto Kind, rejecting anything else.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case KindSuperAdmin, KindAdmin, KindUser:
		return k, nil
	default:
		return "", apperr.Validationf("unknown principal kind %q", raw)
	}
}

// Principal is one node of the SUPER_ADMIN > ADMIN > USER hierarchy. Only
// users carry a parent; construct values through SuperAdmin, Admin, User or New.
type Principal struct {
	ID            string
	Kind          Kind
	ParentAdminID string
}

// SuperAdmin builds the root principal.
func SuperAdmin(id string) (Principal, error) {
	return New(id, KindSuperAdmin, "")
}

// Admin builds an admin principal.
func Admin(id string) (Principal, error) {
	return New(id, KindAdmin, "")
}

// User builds a trading user owned by parentAdminID.
func User(id, parentAdminID string) (Principal, error) {
	return New(id, KindUser, parentAdminID)
}

// New validates the combination of kind and parent.
func New(id string, kind Kind, parentAdminID string) (Principal, error) {
	id = strings.TrimSpace(id)
	parentAdminID = strings.TrimSpace(parentAdminID)
	if id == "" {
		return Principal{}, apperr.Validationf("principal id is required")
	}
	switch kind {
	case KindSuperAdmin, KindAdmin:
		if parentAdminID != "" {
			return Principal{}, apperr.Validationf("%s cannot have a parent admin", kind)
		}
	case KindUser:
		if parentAdminID == "" {
			return Principal{}, apperr.Validationf("user %s requires a parent admin", id)
		}
		if parentAdminID == id {
			return Principal{}, apperr.Validationf("user %s cannot own itself", id)
		}
	default:
		return Principal{}, apperr.Validationf("unknown principal kind %q", kind)
	}
	return Principal{ID: id, Kind: kind, ParentAdminID: parentAdminID}, nil
}

func (p Principal) IsSuperAdmin() bool { return p.Kind == KindSuperAdmin }
func (p Principal) IsAdmin() bool      { return p.Kind == KindAdmin }
func (p Principal) IsUser() bool       { return p.Kind == KindUser }
