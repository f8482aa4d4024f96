package quotations

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// Actor is the caller of a quotation operation.
type Actor struct {
	UserID int64
	// Admin callers may decide on quotations and act on any quotation.
	Admin bool
	// System marks scheduled jobs.
	System bool
}

// AdminPermission grants the admin role for quotations.
const AdminPermission = shared.PermQuotationApprove

// ActorFromPermissions builds an Actor from the caller's effective permissions.
func ActorFromPermissions(userID int64, perms []string) Actor {
	actor := Actor{UserID: userID}
	for _, p := range perms {
		if strings.EqualFold(p, AdminPermission) {
			actor.Admin = true
			break
		}
	}
	return actor
}

func (a Actor) owns(q *Quotation) bool {
	return q != nil && a.UserID > 0 && q.CreatedBy == a.UserID
}

// transitions lists every status change the workflow allows.
var transitions = map[QuotationStatus][]QuotationStatus{
	QuotationStatusDraft:   {QuotationStatusPending, QuotationStatusCancelled, QuotationStatusExpired},
	QuotationStatusPending: {QuotationStatusApproved, QuotationStatusRejected, QuotationStatusCancelled, QuotationStatusExpired},
}

// CanMove reports whether the workflow has an edge from -> to, ignoring who asks.
func CanMove(from, to QuotationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func requireActor(actor Actor) error {
	if actor.UserID <= 0 {
		return fmt.Errorf("%w: no authenticated user", shared.ErrUnauthorized)
	}
	return nil
}

// CanTransition is the single authorization and state check for status
// changes. Role and ownership are checked before the current status so a
// caller without rights always gets Forbidden.
func CanTransition(actor Actor, q *Quotation, target QuotationStatus) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	switch target {
	case QuotationStatusPending:
		if !actor.owns(q) {
			return fmt.Errorf("%w: only the creator can send quotation %s for approval", shared.ErrForbidden, q.Number)
		}
	case QuotationStatusApproved, QuotationStatusRejected:
		if !actor.Admin {
			return fmt.Errorf("%w: admin role required to %s quotations", shared.ErrForbidden, decisionVerb(target))
		}
	case QuotationStatusCancelled:
		if !actor.owns(q) && !actor.Admin {
			return fmt.Errorf("%w: only the creator or an admin can cancel quotation %s", shared.ErrForbidden, q.Number)
		}
	case QuotationStatusExpired:
		if !actor.System {
			return fmt.Errorf("%w: quotations expire on schedule only", shared.ErrForbidden)
		}
	}
	if !CanMove(q.Status, target) {
		return fmt.Errorf("%w: quotation %s is %s, cannot move to %s", shared.ErrInvalidTransition, q.Number, q.Status, target)
	}
	return nil
}

// CanExpire checks, on the locked row, that the quotation's validity ended
// before asOf's calendar day. A quotation extended after it was listed as
// overdue is left alone.
func CanExpire(q *Quotation, asOf time.Time) error {
	if !dateOf(q.ValidUntil).Before(dateOf(asOf)) {
		return fmt.Errorf("%w: quotation %s is valid until %s", shared.ErrInvalidTransition, q.Number, q.ValidUntil.Format(time.DateOnly))
	}
	return nil
}

// CanEdit guards content changes (items, terms, attachments).
func CanEdit(actor Actor, q *Quotation) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.owns(q) && !actor.Admin {
		return fmt.Errorf("%w: only the creator or an admin can edit quotation %s", shared.ErrForbidden, q.Number)
	}
	if q.Status.Terminal() {
		return fmt.Errorf("%w: quotation %s is %s and can no longer be edited", shared.ErrInvalidTransition, q.Number, q.Status)
	}
	return nil
}

// CanView guards reads of a single quotation.
func CanView(actor Actor, q *Quotation) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.owns(q) && !actor.Admin {
		return fmt.Errorf("%w: quotation %s belongs to another user", shared.ErrForbidden, q.Number)
	}
	return nil
}

func decisionVerb(target QuotationStatus) string {
	if target == QuotationStatusRejected {
		return DecisionReject
	}
	return DecisionApprove
}
