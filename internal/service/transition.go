package service

import (
	"strings"
	"time"

	"github.com/shinyyama/safedeal/internal/model"
)

// Transition is a request to move a deal along one edge of its lifecycle.
// Each kind carries only the fields its edge needs.
type Transition interface {
	Target() model.DealStatus
	permits(role Role) bool
	validate() error
	fields(now time.Time) map[string]interface{}
}

// Ship is the seller handing the goods to a carrier.
type Ship struct {
	ShippingNumber string
	DispatchNote   string
}

func (Ship) Target() model.DealStatus { return model.DealStatusShipped }

func (Ship) permits(role Role) bool { return role == RoleSeller }

func (t Ship) validate() error {
	if strings.TrimSpace(t.ShippingNumber) == "" {
		return invalidArgument("shipping number is required")
	}
	return nil
}

func (t Ship) fields(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":          model.DealStatusShipped,
		"shipping_number": strings.TrimSpace(t.ShippingNumber),
		"dispatch_note":   strings.TrimSpace(t.DispatchNote),
		"shipped_at":      now,
	}
}

// Complete is the buyer confirming receipt.
type Complete struct{}

func (Complete) Target() model.DealStatus { return model.DealStatusCompleted }

func (Complete) permits(role Role) bool { return role == RoleBuyer }

func (Complete) validate() error { return nil }

func (Complete) fields(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":       model.DealStatusCompleted,
		"completed_at": now,
	}
}

// Dispute can be filed by either party.
type Dispute struct {
	Reason string
}

func (Dispute) Target() model.DealStatus { return model.DealStatusDisputed }

func (Dispute) permits(role Role) bool { return role == RoleBuyer || role == RoleSeller }

func (t Dispute) validate() error {
	if strings.TrimSpace(t.Reason) == "" {
		return invalidArgument("dispute reason is required")
	}
	return nil
}

func (t Dispute) fields(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":         model.DealStatusDisputed,
		"dispute_reason": strings.TrimSpace(t.Reason),
		"disputed_at":    now,
	}
}

// Cancel is the buyer withdrawing before shipment.
type Cancel struct{}

func (Cancel) Target() model.DealStatus { return model.DealStatusCancelled }

func (Cancel) permits(role Role) bool { return role == RoleBuyer }

func (Cancel) validate() error { return nil }

func (Cancel) fields(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":        model.DealStatusCancelled,
		"cancel_reason": model.CancelReasonBuyerCancelled,
		"cancelled_at":  now,
	}
}

// expire is the system cancelling a pending deal past its deadline. It cannot
// be requested by users.
type expire struct{}

func (expire) Target() model.DealStatus { return model.DealStatusCancelled }

func (expire) permits(Role) bool { return false }

func (expire) validate() error { return nil }

func (expire) fields(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":        model.DealStatusCancelled,
		"cancel_reason": model.CancelReasonExpired,
		"cancelled_at":  now,
	}
}
