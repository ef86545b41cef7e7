package entity

// Customer types mirrored from the ERP.
const (
	CustomerTypeCompany    = "Company"
	CustomerTypeIndividual = "Individual"
)

// Customer is the ERP party an invoice bills to. Only the fields the fiscal
// status resolution needs are mirrored here.
type Customer struct {
	ID        string
	Name      string
	Type      string // CustomerTypeCompany or CustomerTypeIndividual
	Territory string
	IDNO      string // fiscal code, when known
}

// IsBusiness reports whether the customer is a business entity; only those
// fall under the e-Factura mandate.
func (c *Customer) IsBusiness() bool {
	return c.Type == CustomerTypeCompany
}

// Territory is one node of the ERP's territory tree, represented as a
// nested-set interval. A territory A contains territory B iff
// B.Left >= A.Left && B.Right <= A.Right.
type Territory struct {
	Name  string
	Left  int
	Right int
}

// Contains reports whether other's interval lies fully inside t's interval.
func (t Territory) Contains(other Territory) bool {
	return other.Left >= t.Left && other.Right <= t.Right
}
