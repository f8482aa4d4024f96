package quotations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// WorkflowSuite drives quotations through complete lifecycles against the
// in-memory repository.
type WorkflowSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
}

func (s *WorkflowSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()
}

func (s *WorkflowSuite) activityTypes(id int64) []ActivityType {
	var types []ActivityType
	for _, a := range s.env.repo.activitiesOf(id) {
		types = append(types, a.Type)
	}
	return types
}

// Draft, revise, submit, approve.
func (s *WorkflowSuite) TestApprovedLifecycle() {
	t := s.T()

	q := s.env.createDraft(t)
	s.Equal(QuotationStatusDraft, q.Status)
	s.Regexp(`^QT-2610-\d{4}$`, q.Number)

	revised, err := s.env.svc.Update(s.ctx, creator, q.ID, UpdateQuotationRequest{
		Items: []ItemRequest{{ProductID: 3, Quantity: 100}},
	})
	s.Require().NoError(err)
	s.Equal(2, revised.Revision)
	s.Equal("35.00", revised.TotalAmount.StringFixed(2))

	pending, err := s.env.svc.SendForApproval(s.ctx, creator, q.ID)
	s.Require().NoError(err)
	s.Equal(QuotationStatusPending, pending.Status)

	approved, err := s.env.svc.Decide(s.ctx, admin, q.ID, DecisionApprove, "")
	s.Require().NoError(err)
	s.Equal(QuotationStatusApproved, approved.Status)
	s.Require().NotNil(approved.DecidedBy)
	s.Equal(admin.UserID, *approved.DecidedBy)

	s.Equal([]ActivityType{ActivityCreated, ActivityUpdate, ActivityStatusChange, ActivityApproved}, s.activityTypes(q.ID))
	s.Len(s.env.repo.notificationsFor(creator.UserID), 1)
	s.Len(s.env.dispatcher.sent, 1)

	_, err = s.env.svc.Update(s.ctx, creator, q.ID, UpdateQuotationRequest{Items: []ItemRequest{{ProductID: 1, Quantity: 1}}})
	s.ErrorIs(err, shared.ErrInvalidTransition)
	_, err = s.env.svc.Cancel(s.ctx, admin, q.ID, "too late")
	s.ErrorIs(err, shared.ErrInvalidTransition)
}

// Cart checkout lands in PENDING and the admin rejects it.
func (s *WorkflowSuite) TestCheckoutRejected() {
	q, err := s.env.svc.CheckoutCart(s.ctx, creator, "cart-77", CheckoutRequest{
		Items: []CartItem{{ProductID: 2, Quantity: 1}},
	})
	s.Require().NoError(err)
	s.Equal(QuotationStatusPending, q.Status)

	_, err = s.env.svc.SendForApproval(s.ctx, creator, q.ID)
	s.ErrorIs(err, shared.ErrInvalidTransition)

	rejected, err := s.env.svc.Decide(s.ctx, admin, q.ID, DecisionReject, "price too high")
	s.Require().NoError(err)
	s.Equal(QuotationStatusRejected, rejected.Status)

	notes := s.env.repo.notificationsFor(creator.UserID)
	if s.Len(notes, 1) {
		s.Equal("Quotation rejected", notes[0].Title)
		s.Contains(notes[0].Message, "price too high")
	}
	types := s.activityTypes(q.ID)
	s.Equal(ActivityRejected, types[len(types)-1])
}

// A pending quotation past its validity date is swept by the expiry job.
func (s *WorkflowSuite) TestPendingExpires() {
	q := s.env.createPending(s.T())
	s.env.repo.setValidUntil(q.ID, testNow.AddDate(0, 0, -1))

	n, err := s.env.svc.ExpireOverdue(s.ctx, testNow)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(QuotationStatusExpired, s.env.repo.status(q.ID))

	_, err = s.env.svc.Decide(s.ctx, admin, q.ID, DecisionApprove, "")
	s.ErrorIs(err, shared.ErrInvalidTransition)

	n, err = s.env.svc.ExpireOverdue(s.ctx, testNow)
	s.Require().NoError(err)
	s.Zero(n)
	s.Empty(s.env.repo.notificationsFor(creator.UserID))
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}
