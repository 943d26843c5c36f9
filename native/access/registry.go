package access

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Role identifiers recognised by the registry.
const (
	RoleAdmin    = "ROLE_ADMIN"
	RoleOperator = "ROLE_OPERATOR"
)

var (
	// ErrUnauthorized is returned when the caller lacks the role required
	// for a mutation.
	ErrUnauthorized = errors.New("access: unauthorized")
	// ErrLastAdmin is returned when a revocation would leave the registry
	// without any admin.
	ErrLastAdmin = errors.New("access: cannot revoke the last admin")
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Registry persists role membership for the staking platform. Every component
// holds a Checker reference injected at construction so authorization can be
// substituted in tests.
type Registry struct {
	state registryState
}

// Checker answers role membership queries. It is the capability interface the
// staking components consume; the concrete Registry implements it.
type Checker interface {
	HasRole(addr [20]byte, role string) (bool, error)
}

// NewRegistry constructs a registry backed by the provided state accessor.
func NewRegistry(state registryState) *Registry {
	return &Registry{state: state}
}

func roleKey(role string) []byte {
	return []byte(fmt.Sprintf("access/role/%s", role))
}

func normalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

func (r *Registry) members(role string) ([][20]byte, error) {
	if r == nil || r.state == nil {
		return nil, errors.New("access: registry not initialised")
	}
	var stored [][]byte
	if _, err := r.state.KVGet(roleKey(role), &stored); err != nil {
		return nil, err
	}
	members := make([][20]byte, 0, len(stored))
	for _, raw := range stored {
		if len(raw) != 20 {
			continue
		}
		var addr [20]byte
		copy(addr[:], raw)
		members = append(members, addr)
	}
	return members, nil
}

func (r *Registry) writeMembers(role string, members [][20]byte) error {
	stored := make([][]byte, 0, len(members))
	for _, addr := range members {
		stored = append(stored, append([]byte(nil), addr[:]...))
	}
	return r.state.KVPut(roleKey(role), stored)
}

// HasRole reports whether the address currently holds the provided role.
func (r *Registry) HasRole(addr [20]byte, role string) (bool, error) {
	normalized := normalizeRole(role)
	if normalized == "" {
		return false, nil
	}
	members, err := r.members(normalized)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if bytes.Equal(member[:], addr[:]) {
			return true, nil
		}
	}
	return false, nil
}

// AdminCount returns the number of admin role holders. The registry must
// always report at least one once bootstrapped.
func (r *Registry) AdminCount() (int, error) {
	members, err := r.members(RoleAdmin)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// Bootstrap seeds the initial admin. It is a no-op when the address already
// holds the role, so genesis wiring can run it unconditionally.
func (r *Registry) Bootstrap(admin [20]byte) error {
	has, err := r.HasRole(admin, RoleAdmin)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	members, err := r.members(RoleAdmin)
	if err != nil {
		return err
	}
	return r.writeMembers(RoleAdmin, append(members, admin))
}

// GrantRole adds the address to the role's membership. Only an admin may
// grant roles.
func (r *Registry) GrantRole(caller, addr [20]byte, role string) error {
	isAdmin, err := r.HasRole(caller, RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	normalized := normalizeRole(role)
	if normalized != RoleAdmin && normalized != RoleOperator {
		return fmt.Errorf("access: unknown role %q", role)
	}
	members, err := r.members(normalized)
	if err != nil {
		return err
	}
	for _, member := range members {
		if bytes.Equal(member[:], addr[:]) {
			return nil
		}
	}
	return r.writeMembers(normalized, append(members, addr))
}

// RevokeRole removes the address from the role's membership. Revoking the
// last admin fails so the registry never loses its bootstrap invariant.
func (r *Registry) RevokeRole(caller, addr [20]byte, role string) error {
	isAdmin, err := r.HasRole(caller, RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	normalized := normalizeRole(role)
	members, err := r.members(normalized)
	if err != nil {
		return err
	}
	filtered := members[:0]
	removed := false
	for _, member := range members {
		if bytes.Equal(member[:], addr[:]) {
			removed = true
			continue
		}
		filtered = append(filtered, member)
	}
	if !removed {
		return nil
	}
	if normalized == RoleAdmin && len(filtered) == 0 {
		return ErrLastAdmin
	}
	return r.writeMembers(normalized, filtered)
}
