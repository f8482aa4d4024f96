package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
	"github.com/odyssey-erp/odyssey-quote/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

const (
	checkoutScope        = "quotations.checkout"
	summaryActivityLimit = 20
	expiryBatchSize      = 500
	defaultNumberRetries = 3
	defaultValidityDays  = 30
	defaultCurrency      = "IDR"
	defaultPaymentTerms  = PaymentTermsNet30
)

// IdempotencyGuard records processed request keys.
type IdempotencyGuard interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// TransitionRecorder observes committed status changes.
type TransitionRecorder interface {
	ObserveTransition(from, to string)
}

type ServiceConfig struct {
	Logger          *slog.Logger
	Idempotency     IdempotencyGuard
	Notifier        notifications.Dispatcher
	Metrics         TransitionRecorder
	DefaultCurrency string
	ValidityDays    int
	NumberRetries   int
	// SystemUserID is recorded as the actor of scheduled transitions.
	SystemUserID int64
	Clock        func() time.Time
}

type Service struct {
	repo          Repository
	logger        *slog.Logger
	idempotency   IdempotencyGuard
	notifier      notifications.Dispatcher
	metrics       TransitionRecorder
	currency      string
	validityDays  int
	numberRetries int
	systemUserID  int64
	now           func() time.Time
}

func NewService(repo Repository, cfg ServiceConfig) *Service {
	s := &Service{
		repo:          repo,
		logger:        cfg.Logger,
		idempotency:   cfg.Idempotency,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		currency:      strings.ToUpper(cfg.DefaultCurrency),
		validityDays:  cfg.ValidityDays,
		numberRetries: cfg.NumberRetries,
		systemUserID:  cfg.SystemUserID,
		now:           cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	if s.validityDays <= 0 {
		s.validityDays = defaultValidityDays
	}
	if s.numberRetries <= 0 {
		s.numberRetries = defaultNumberRetries
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create prices the requested items against the catalog and stores a DRAFT
// quotation under a fresh number.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateQuotationRequest) (*Quotation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	q, err := s.newHeader(req.Currency, req.ValidUntil, req.PaymentTerms)
	if err != nil {
		return nil, err
	}
	q.Status = QuotationStatusDraft
	q.Notes, q.Terms = req.Notes, req.Terms
	q.CreatedBy = actor.UserID

	items, err := s.priceItems(ctx, s.repo, req.Items)
	if err != nil {
		return nil, s.persistErr(err, "price items", 0)
	}
	if err := applyTotals(q, items, req.TaxRate, req.Discount, req.ShippingCost); err != nil {
		return nil, err
	}
	if err := s.insertNew(ctx, q, items, actor.UserID, "Quotation created"); err != nil {
		return nil, err
	}
	return s.load(ctx, q.ID)
}

// CheckoutCart turns cart contents into a PENDING quotation at catalog
// prices. A repeated idempotency key fails with ErrIdempotencyConflict.
func (s *Service) CheckoutCart(ctx context.Context, actor Actor, idempotencyKey string, req CheckoutRequest) (*Quotation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, fmt.Errorf("%w: Idempotency-Key header is required", shared.ErrValidation)
	}
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	q, err := s.newHeader(req.Currency, "", req.PaymentTerms)
	if err != nil {
		return nil, err
	}
	q.Status = QuotationStatusPending
	q.Notes = req.Notes
	q.CreatedBy = actor.UserID

	lines := make([]ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	items, err := s.priceItems(ctx, s.repo, lines)
	if err != nil {
		return nil, s.persistErr(err, "price cart", 0)
	}
	if err := applyTotals(q, items, decimal.Zero, decimal.Zero, decimal.Zero); err != nil {
		return nil, err
	}

	key := strconv.FormatInt(actor.UserID, 10) + ":" + idempotencyKey
	if s.idempotency != nil {
		if err := s.idempotency.Claim(ctx, checkoutScope, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, err
			}
			return nil, s.persistErr(err, "record idempotency key", 0)
		}
	}
	if err := s.insertNew(ctx, q, items, actor.UserID, "Quotation created from cart checkout"); err != nil {
		if s.idempotency != nil {
			if delErr := s.idempotency.Release(context.WithoutCancel(ctx), checkoutScope, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	return s.load(ctx, q.ID)
}

// Update replaces the items and header fields of a non-terminal quotation
// and bumps its revision.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, req UpdateQuotationRequest) (*Quotation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CanEdit(actor, q); err != nil {
			return err
		}
		header, err := s.newHeader(req.Currency, req.ValidUntil, req.PaymentTerms)
		if err != nil {
			return err
		}
		if req.ValidUntil == "" {
			header.ValidUntil = q.ValidUntil
		}
		if req.Currency == "" {
			header.Currency = q.Currency
		}
		if req.PaymentTerms == "" {
			header.PaymentTerms = q.PaymentTerms
		}
		q.Currency, q.ValidUntil, q.PaymentTerms = header.Currency, header.ValidUntil, header.PaymentTerms
		q.Notes, q.Terms = req.Notes, req.Terms

		items, err := s.priceItems(ctx, repo, req.Items)
		if err != nil {
			return err
		}
		if err := applyTotals(q, items, req.TaxRate, req.Discount, req.ShippingCost); err != nil {
			return err
		}
		q.Revision++
		if err := repo.UpdateHeader(ctx, q, q.Status); err != nil {
			return err
		}
		if err := repo.ReplaceItems(ctx, q.ID, items); err != nil {
			return err
		}
		_, err = repo.InsertActivity(ctx, Activity{
			QuotationID: q.ID,
			Type:        ActivityUpdate,
			Description: fmt.Sprintf("Revision %d: %d item(s), total %s %s", q.Revision, len(items), q.TotalAmount.StringFixed(pricing.MoneyPlaces), q.Currency),
			ActorID:     actor.UserID,
		})
		return err
	})
	if err != nil {
		return nil, s.persistErr(err, "update quotation", id)
	}
	return s.load(ctx, id)
}

// SendForApproval moves a DRAFT quotation to PENDING. Only the creator may
// submit.
func (s *Service) SendForApproval(ctx context.Context, actor Actor, id int64) (*Quotation, error) {
	if _, err := s.transition(ctx, actor, id, statusChange{
		target:      QuotationStatusPending,
		activity:    ActivityStatusChange,
		description: "Sent for approval",
	}); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Decide approves or rejects a PENDING quotation and notifies its creator.
func (s *Service) Decide(ctx context.Context, actor Actor, id int64, action, reason string) (*Quotation, error) {
	change := statusChange{reason: strings.TrimSpace(reason), notify: true, decision: true}
	switch action {
	case DecisionApprove:
		change.target, change.activity, change.description = QuotationStatusApproved, ActivityApproved, "Approved"
	case DecisionReject:
		change.target, change.activity, change.description = QuotationStatusRejected, ActivityRejected, "Rejected"
	default:
		return nil, fmt.Errorf("%w: action must be %q or %q", shared.ErrValidation, DecisionApprove, DecisionReject)
	}
	if _, err := s.transition(ctx, actor, id, change); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Cancel withdraws a non-terminal quotation.
func (s *Service) Cancel(ctx context.Context, actor Actor, id int64, reason string) (*Quotation, error) {
	if _, err := s.transition(ctx, actor, id, statusChange{
		target:      QuotationStatusCancelled,
		activity:    ActivityStatusChange,
		description: "Cancelled",
		reason:      strings.TrimSpace(reason),
	}); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// ExpireOverdue moves DRAFT and PENDING quotations whose validity ended
// before now's calendar day to EXPIRED. It returns how many were expired;
// quotations that changed state in the meantime are skipped.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListOverdue(ctx, now, expiryBatchSize)
	if err != nil {
		return 0, s.persistErr(err, "list overdue quotations", 0)
	}
	system := Actor{UserID: s.systemUserID, System: true}
	expired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := s.transition(ctx, system, id, statusChange{
			target:      QuotationStatusExpired,
			activity:    ActivityStatusChange,
			description: "Expired on " + now.Format(time.DateOnly),
			asOf:        now,
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, shared.ErrInvalidTransition):
			s.logger.Debug("skip expiry, quotation already moved", slog.Int64("quotation_id", id))
		default:
			errs = append(errs, fmt.Errorf("expire quotation %d: %w", id, err))
		}
	}
	return expired, errors.Join(errs...)
}

// AddAttachment records attachment metadata on a non-terminal quotation.
func (s *Service) AddAttachment(ctx context.Context, actor Actor, id int64, req AttachmentRequest) (*Attachment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	var created Attachment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CanEdit(actor, q); err != nil {
			return err
		}
		created, err = repo.InsertAttachment(ctx, Attachment{
			QuotationID: id,
			FileName:    req.FileName,
			URL:         req.URL,
			ContentType: req.ContentType,
			SizeBytes:   req.SizeBytes,
			UploadedBy:  actor.UserID,
		})
		if err != nil {
			return err
		}
		_, err = repo.InsertActivity(ctx, Activity{
			QuotationID: id,
			Type:        ActivityUpdate,
			Description: "Attached " + req.FileName,
			ActorID:     actor.UserID,
		})
		return err
	})
	if err != nil {
		return nil, s.persistErr(err, "add attachment", id)
	}
	return &created, nil
}

// Get returns the quotation with items, attachments and the most recent
// activities.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*Quotation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.persistErr(err, "get quotation", id)
	}
	if err := CanView(actor, q); err != nil {
		return nil, err
	}
	if err := s.loadParts(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListActivities returns the activity history newest first. limit <= 0
// returns everything.
func (s *Service) ListActivities(ctx context.Context, actor Actor, id int64, limit int) ([]Activity, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.persistErr(err, "get quotation", id)
	}
	if err := CanView(actor, q); err != nil {
		return nil, err
	}
	acts, err := s.repo.ListActivities(ctx, id, limit)
	if err != nil {
		return nil, s.persistErr(err, "list activities", id)
	}
	if acts == nil {
		acts = []Activity{}
	}
	return acts, nil
}

// List pages through quotations. Callers without the admin role only see
// their own.
func (s *Service) List(ctx context.Context, actor Actor, req ListQuotationsRequest) ([]Quotation, int, error) {
	if err := requireActor(actor); err != nil {
		return nil, 0, err
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *req.Status)
	}
	if !actor.Admin {
		own := actor.UserID
		req.CreatedBy = &own
	}
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, 0, s.persistErr(err, "list quotations", 0)
	}
	if items == nil {
		items = []Quotation{}
	}
	return items, total, nil
}

type statusChange struct {
	target      QuotationStatus
	activity    ActivityType
	description string
	reason      string
	notify      bool
	decision    bool
	asOf        time.Time
}

// transition applies one status change: lock, authorize, guarded update,
// activity and optional creator notification all in one transaction. The
// notification is dispatched after commit.
func (s *Service) transition(ctx context.Context, actor Actor, id int64, change statusChange) (*Quotation, error) {
	var (
		from    QuotationStatus
		updated *Quotation
		note    *notifications.Notification
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CanTransition(actor, q, change.target); err != nil {
			return err
		}
		if change.target == QuotationStatusExpired {
			if err := CanExpire(q, change.asOf); err != nil {
				return err
			}
		}
		from = q.Status

		var decidedBy *int64
		if change.decision {
			decidedBy = &actor.UserID
		}
		if err := repo.UpdateStatus(ctx, id, from, change.target, decidedBy); err != nil {
			return err
		}
		description := change.description
		if change.reason != "" {
			description += ": " + change.reason
		}
		if _, err := repo.InsertActivity(ctx, Activity{
			QuotationID: id,
			Type:        change.activity,
			Description: description,
			ActorID:     actor.UserID,
		}); err != nil {
			return err
		}
		if change.notify {
			n, err := repo.InsertNotification(ctx, decisionNotice(q, change))
			if err != nil {
				return err
			}
			note = &n
		}
		q.Status = change.target
		updated = q
		return nil
	})
	if err != nil {
		return nil, s.persistErr(err, "transition to "+string(change.target), id)
	}

	s.logger.Info("quotation status changed",
		slog.Int64("quotation_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(change.target)),
		slog.Int64("actor_id", actor.UserID),
	)
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(change.target))
	}
	if note != nil {
		s.dispatch(ctx, *note)
	}
	return updated, nil
}

func decisionNotice(q *Quotation, change statusChange) notifications.Notification {
	verb := "approved"
	if change.target == QuotationStatusRejected {
		verb = "rejected"
	}
	msg := fmt.Sprintf("Quotation %s was %s.", q.Number, verb)
	if change.reason != "" {
		msg = fmt.Sprintf("Quotation %s was %s: %s", q.Number, verb, change.reason)
	}
	id := q.ID
	return notifications.Notification{
		UserID:      q.CreatedBy,
		QuotationID: &id,
		Title:       "Quotation " + verb,
		Message:     msg,
	}
}

// dispatch hands the committed notification to live delivery. Failures are
// logged; the stored notification remains readable.
func (s *Service) dispatch(ctx context.Context, n notifications.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("notification dispatch failed",
			slog.Int64("notification_id", n.ID),
			slog.Int64("user_id", n.UserID),
			slog.Any("error", err),
		)
	}
}

// insertNew draws a number and writes the quotation, its items and the
// CREATED activity. A number collision rolls the attempt back and retries
// with a fresh number.
func (s *Service) insertNew(ctx context.Context, q *Quotation, items []Item, actorID int64, description string) error {
	for attempt := 1; attempt <= s.numberRetries; attempt++ {
		number, err := s.repo.NextNumber(ctx, s.now())
		if errors.Is(err, ErrNumberTaken) {
			continue
		}
		if err != nil {
			return s.persistErr(err, "allocate number", 0)
		}
		q.Number = number
		lines := append([]Item(nil), items...)
		err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			if err := repo.Insert(ctx, q); err != nil {
				return err
			}
			if err := repo.ReplaceItems(ctx, q.ID, lines); err != nil {
				return err
			}
			_, err := repo.InsertActivity(ctx, Activity{
				QuotationID: q.ID,
				Type:        ActivityCreated,
				Description: fmt.Sprintf("%s as %s", description, number),
				ActorID:     actorID,
			})
			return err
		})
		if errors.Is(err, ErrNumberTaken) {
			s.logger.Warn("quotation number collision",
				slog.String("number", number),
				slog.Int("attempt", attempt),
			)
			q.ID = 0
			continue
		}
		if err != nil {
			return s.persistErr(err, "create quotation", 0)
		}
		q.Items = lines
		return nil
	}
	s.logger.Error("quotation number generation exhausted", slog.Int("attempts", s.numberRetries))
	return fmt.Errorf("%w: no free number after %d attempts", shared.ErrNumberGenerationFailed, s.numberRetries)
}

// newHeader resolves currency, validity date and payment terms, applying
// defaults for empty inputs.
func (s *Service) newHeader(code, validUntil string, terms PaymentTerms) (*Quotation, error) {
	q := &Quotation{Revision: 1, PaymentTerms: terms, Currency: s.currency}
	if q.PaymentTerms == "" {
		q.PaymentTerms = defaultPaymentTerms
	}
	if code != "" {
		unit, err := currency.ParseISO(code)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, code)
		}
		q.Currency = unit.String()
	}

	today := dateOf(s.now())
	if validUntil == "" {
		q.ValidUntil = today.AddDate(0, 0, s.validityDays)
		return q, nil
	}
	parsed, err := time.Parse(time.DateOnly, validUntil)
	if err != nil {
		return nil, fmt.Errorf("%w: valid_until must be YYYY-MM-DD", shared.ErrValidation)
	}
	if parsed.Before(today) {
		return nil, fmt.Errorf("%w: valid_until %s is in the past", shared.ErrValidation, validUntil)
	}
	q.ValidUntil = parsed
	return q, nil
}

// priceItems snapshots catalog data into items and values each line.
func (s *Service) priceItems(ctx context.Context, repo Repository, reqs []ItemRequest) ([]Item, error) {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ProductID)
	}
	products, err := repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(reqs))
	for i, r := range reqs {
		p, ok := products[r.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d: product %d is not in the catalog", shared.ErrValidation, i+1, r.ProductID)
		}
		price := p.Price
		if r.UnitPrice != nil {
			price = *r.UnitPrice
		}
		amounts, err := pricing.LineTotal(r.Quantity, price, r.DiscountPercent, r.TaxPercent)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, Item{
			LineNo:          i + 1,
			ProductID:       p.ID,
			ProductName:     p.Name,
			ProductSKU:      p.SKU,
			ListPrice:       p.Price,
			Quantity:        r.Quantity,
			UnitPrice:       price,
			DiscountPercent: r.DiscountPercent,
			TaxPercent:      r.TaxPercent,
			Total:           amounts.Total,
			Notes:           r.Notes,
		})
	}
	return items, nil
}

func applyTotals(q *Quotation, items []Item, taxRate, discount, shipping decimal.Decimal) error {
	lineTotals := make([]decimal.Decimal, 0, len(items))
	for _, it := range items {
		lineTotals = append(lineTotals, it.Total)
	}
	totals, err := pricing.Aggregate(lineTotals, taxRate, discount, shipping)
	if err != nil {
		return err
	}
	if totals.Total.IsNegative() {
		return fmt.Errorf("%w: discount %s exceeds quotation value", shared.ErrValidation, totals.Discount.StringFixed(pricing.MoneyPlaces))
	}
	q.Subtotal = totals.Subtotal
	q.TaxRate = totals.TaxRate
	q.TaxAmount = totals.TaxAmount
	q.Discount = totals.Discount
	q.ShippingCost = totals.ShippingCost
	q.TotalAmount = totals.Total
	return nil
}

// load reads the full quotation without an access check; callers have
// already authorized the actor.
func (s *Service) load(ctx context.Context, id int64) (*Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.persistErr(err, "get quotation", id)
	}
	if err := s.loadParts(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) loadParts(ctx context.Context, q *Quotation) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.repo.ListItems(gctx, q.ID)
		q.Items = items
		return err
	})
	g.Go(func() error {
		atts, err := s.repo.ListAttachments(gctx, q.ID)
		q.Attachments = atts
		return err
	})
	g.Go(func() error {
		acts, err := s.repo.ListActivities(gctx, q.ID, summaryActivityLimit)
		q.Activities = acts
		return err
	})
	if err := g.Wait(); err != nil {
		return s.persistErr(err, "load quotation details", q.ID)
	}
	return nil
}

// persistErr passes domain errors through and replaces anything else with
// ErrPersistence after logging the cause.
func (s *Service) persistErr(err error, op string, quotationID int64) error {
	if err == nil || shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("quotation store failure",
		slog.String("op", op),
		slog.Int64("quotation_id", quotationID),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %s", shared.ErrPersistence, op)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
