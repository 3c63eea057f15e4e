package principal

// Authority is the set of principal ids entitled to resolve a fund request.
type Authority map[string]struct{}

// Contains reports whether id may resolve the request.
func (a Authority) Contains(id string) bool {
	_, ok := a[id]
	return ok
}

// IDs returns the members in no particular order.
func (a Authority) IDs() []string {
	out := make([]string, 0, len(a))
	for id := range a {
		out = append(out, id)
	}
	return out
}

// AuthorityFor returns who may approve or reject a request raised by requester.
// A user's request is resolved by its owning admin or the super admin; an
// admin's request only by the super admin. The super admin never raises
// requests, so its authority set is empty.
func AuthorityFor(requester Principal, superAdminID string) Authority {
	set := Authority{}
	switch requester.Kind {
	case KindUser:
		set[requester.ParentAdminID] = struct{}{}
		set[superAdminID] = struct{}{}
	case KindAdmin:
		set[superAdminID] = struct{}{}
	case KindSuperAdmin:
	}
	delete(set, requester.ID)
	delete(set, "")
	return set
}

// Counterparty is the funding principal a requester settles against: the
// owning admin for users, the super admin for admins.
func Counterparty(requester Principal, superAdminID string) (string, bool) {
	switch requester.Kind {
	case KindUser:
		return requester.ParentAdminID, true
	case KindAdmin:
		return superAdminID, superAdminID != ""
	default:
		return "", false
	}
}
