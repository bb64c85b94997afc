package enums

// CustomerRole tags a customer row; intake only ever creates plain customers.
type CustomerRole string

const (
	CustomerRoleCustomer CustomerRole = "customer"
	CustomerRoleDealer   CustomerRole = "dealer"
)

func (r CustomerRole) IsValid() bool {
	return r == CustomerRoleCustomer || r == CustomerRoleDealer
}
