package repositories

import "gorm.io/gorm"

// NewRegistry wires the gorm-backed repositories.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		Accounts: NewAccountRepository(db),
		Sessions: NewPortalSessionRepository(db),
		Requests: NewServiceRequestRepository(db),
		Links:    NewLinkTokenRepository(db),
		Invoices: NewInvoiceRepository(db),
	}
}
