package approval

import (
	"propdesk/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Decision is the auto-approval outcome for one invoice amount.
type Decision struct {
	AutoApproved bool
	Status       domain.ApprovalStatus
	Threshold    decimal.Decimal
	TableVersion string
}

// Decide approves amount automatically when it does not exceed the
// threshold for (t, p). The boundary is inclusive.
func Decide(amount decimal.Decimal, t domain.ServiceType, p domain.Priority) Decision {
	limit := Threshold(t, p)
	auto := amount.LessThanOrEqual(limit)

	status := domain.ApprovalPendingReview
	if auto {
		status = domain.ApprovalAutoApproved
	}

	return Decision{
		AutoApproved: auto,
		Status:       status,
		Threshold:    limit,
		TableVersion: TableVersion,
	}
}
