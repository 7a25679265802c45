// Package approval holds the auto-approval cost matrix and the decision
// derived from it. The portal uses it for immediate feedback and the API
// uses it for the persisted outcome, so both sides read one table.
package approval

import (
	"propdesk/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TableVersion identifies the current threshold matrix. It travels with
// invoice submissions so the API can detect a portal built against an
// older table.
const TableVersion = "2024-06.1"

// FallbackThreshold applies when the service type or priority is unknown.
var FallbackThreshold = decimal.NewFromInt(150)

const (
	idxPlumbing = iota
	idxElectrical
	idxHVAC
	idxAppliance
	idxGeneralMaintenance
	numServiceTypes
)

const (
	idxEmergency = iota
	idxUrgent
	idxRoutine
	numPriorities
)

// thresholds in whole currency units, indexed [service type][priority].
var thresholds = [numServiceTypes][numPriorities]int64{
	idxPlumbing:           {idxEmergency: 500, idxUrgent: 300, idxRoutine: 200},
	idxElectrical:         {idxEmergency: 600, idxUrgent: 400, idxRoutine: 250},
	idxHVAC:               {idxEmergency: 750, idxUrgent: 500, idxRoutine: 300},
	idxAppliance:          {idxEmergency: 400, idxUrgent: 250, idxRoutine: 150},
	idxGeneralMaintenance: {idxEmergency: 350, idxUrgent: 200, idxRoutine: 150},
}

// ServiceTypes lists the service types with a dedicated row, in table order.
var ServiceTypes = [numServiceTypes]domain.ServiceType{
	idxPlumbing:           domain.ServiceTypePlumbing,
	idxElectrical:         domain.ServiceTypeElectrical,
	idxHVAC:               domain.ServiceTypeHVAC,
	idxAppliance:          domain.ServiceTypeAppliance,
	idxGeneralMaintenance: domain.ServiceTypeGeneralMaintenance,
}

// Priorities lists the priorities with a dedicated column, in table order.
var Priorities = [numPriorities]domain.Priority{
	idxEmergency: domain.PriorityEmergency,
	idxUrgent:    domain.PriorityUrgent,
	idxRoutine:   domain.PriorityRoutine,
}

func serviceTypeIndex(t domain.ServiceType) (int, bool) {
	switch t {
	case domain.ServiceTypePlumbing:
		return idxPlumbing, true
	case domain.ServiceTypeElectrical:
		return idxElectrical, true
	case domain.ServiceTypeHVAC:
		return idxHVAC, true
	case domain.ServiceTypeAppliance:
		return idxAppliance, true
	case domain.ServiceTypeGeneralMaintenance:
		return idxGeneralMaintenance, true
	}
	return 0, false
}

func priorityIndex(p domain.Priority) (int, bool) {
	switch p {
	case domain.PriorityEmergency:
		return idxEmergency, true
	case domain.PriorityUrgent:
		return idxUrgent, true
	case domain.PriorityRoutine:
		return idxRoutine, true
	}
	return 0, false
}

// Threshold returns the maximum auto-approvable amount for the pair.
// It is total: unknown values on either axis yield FallbackThreshold.
func Threshold(t domain.ServiceType, p domain.Priority) decimal.Decimal {
	ti, ok := serviceTypeIndex(t)
	if !ok {
		return FallbackThreshold
	}
	pi, ok := priorityIndex(p)
	if !ok {
		return FallbackThreshold
	}
	return decimal.NewFromInt(thresholds[ti][pi])
}

// Entry is one cell of the matrix.
type Entry struct {
	ServiceType domain.ServiceType
	Priority    domain.Priority
	Amount      decimal.Decimal
}

// Entries returns every cell of the matrix in table order.
func Entries() []Entry {
	out := make([]Entry, 0, numServiceTypes*numPriorities)
	for ti, t := range ServiceTypes {
		for pi, p := range Priorities {
			out = append(out, Entry{
				ServiceType: t,
				Priority:    p,
				Amount:      decimal.NewFromInt(thresholds[ti][pi]),
			})
		}
	}
	return out
}
