// README: Identifier and role value objects shared by modules.
package types

type ID string

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleDriver
}
