package domain

type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleSupplier Role = "supplier"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleSupplier, RoleOperator, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is the caller of a booking operation. Identity is asserted upstream.
type Actor struct {
	ID   string
	Role Role
}

func SystemActor() Actor {
	return Actor{ID: "system", Role: RoleSystem}
}
