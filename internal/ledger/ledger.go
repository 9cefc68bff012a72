// Package ledger applies the one-time quota deduction of an approved leave
// request.
package ledger

import (
	"github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/workday"
)

// Entry describes the effect of settling one request.
type Entry struct {
	Category quota.Category
	Days     int
	Before   quota.Set
	After    quota.Set
	// Applied is false when the request had already been charged.
	Applied bool
}

// Charge returns the category and chargeable days of req.
func Charge(req *leave.Request) (quota.Category, int, error) {
	cat, err := req.Category()
	if err != nil {
		return cat, 0, err
	}
	return cat, workday.ChargeableDays(req.StartDate, req.EndDate, req.ManualDays), nil
}

// OnApproved computes the balances after charging req against before.
// A request whose deduction is already recorded is returned untouched, so
// observing the same approval twice never charges twice. Callers persist
// Entry.After as a full replacement together with the request's
// QuotaDeducted flag.
func OnApproved(req *leave.Request, before quota.Set) (Entry, error) {
	entry := Entry{Before: before.Clone(), After: before.Clone()}
	if req.QuotaDeducted {
		cat, err := req.Category()
		if err != nil {
			return entry, err
		}
		entry.Category = cat
		entry.Days = req.DeductedDays
		return entry, nil
	}

	cat, days, err := Charge(req)
	if err != nil {
		return entry, err
	}

	entry.Category = cat
	entry.Days = days
	entry.After = before.Deduct(cat, days)
	entry.Applied = true
	return entry, nil
}
