package enums

import "fmt"

// ActorRole is the role asserted by the gateway for the calling user.
type ActorRole string

const (
	ActorRoleAdmin        ActorRole = "admin"
	ActorRoleManufacturer ActorRole = "manufacturer"
	ActorRoleDealer       ActorRole = "dealer"
	ActorRoleStaff        ActorRole = "staff"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleManufacturer,
	ActorRoleDealer,
	ActorRoleStaff,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
