package shared

// Sales permissions declared for RBAC.
const (
	PermQuotationView   = "sales.quotation.view"
	PermQuotationCreate = "sales.quotation.create"
	PermQuotationEdit   = "sales.quotation.edit"
	// PermQuotationApprove marks the admin role in the quotation workflow.
	PermQuotationApprove = "sales.quotation.approve"
)

// SalesScopes lists all permissions related to the sales module.
func SalesScopes() []string {
	return []string{
		PermQuotationView,
		PermQuotationCreate,
		PermQuotationEdit,
		PermQuotationApprove,
	}
}
