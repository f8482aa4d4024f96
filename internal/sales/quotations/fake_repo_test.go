package quotations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// memState is the in-memory database behind fakeRepo.
type memState struct {
	nextID        int64
	quotations    map[int64]Quotation
	items         map[int64][]Item
	activities    []Activity
	attachments   []Attachment
	notifications []notifications.Notification
	sequences     map[string]int64
	users         map[int64]string
}

func (s *memState) clone() *memState {
	out := &memState{
		nextID:        s.nextID,
		quotations:    make(map[int64]Quotation, len(s.quotations)),
		items:         make(map[int64][]Item, len(s.items)),
		activities:    append([]Activity(nil), s.activities...),
		attachments:   append([]Attachment(nil), s.attachments...),
		notifications: append([]notifications.Notification(nil), s.notifications...),
		sequences:     make(map[string]int64, len(s.sequences)),
		users:         s.users,
	}
	for k, v := range s.quotations {
		out.quotations[k] = v
	}
	for k, v := range s.items {
		out.items[k] = append([]Item(nil), v...)
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	return out
}

// fakeRepo is a thread-safe Repository. Transactions hold the store lock for
// their whole duration and restore a snapshot when fn fails.
type fakeRepo struct {
	mu       *sync.Mutex
	state    **memState
	products map[int64]Product
	inTx     bool
	// failOps makes the named operations return errStore.
	failOps map[string]bool
}

var errStore = errors.New("connection reset by peer")

func newFakeRepo() *fakeRepo {
	st := &memState{
		quotations: make(map[int64]Quotation),
		items:      make(map[int64][]Item),
		sequences:  make(map[string]int64),
		users:      map[int64]string{1: "system@odyssey.local", 10: "sales@odyssey.local", 11: "other@odyssey.local", 20: "admin@odyssey.local"},
	}
	return &fakeRepo{
		mu:    &sync.Mutex{},
		state: &st,
		products: map[int64]Product{
			1: {ID: 1, SKU: "WID-001", Name: "Widget", Price: decimal.RequireFromString("10.00")},
			2: {ID: 2, SKU: "GAD-002", Name: "Gadget", Price: decimal.RequireFromString("19.99")},
			3: {ID: 3, SKU: "BOL-003", Name: "Bolt", Price: decimal.RequireFromString("0.35")},
		},
		failOps: map[string]bool{},
	}
}

func (f *fakeRepo) lock() func() {
	if f.inTx {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeRepo) st() *memState { return *f.state }

func (f *fakeRepo) fail(op string) error {
	if f.failOps[op] {
		return errStore
	}
	return nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if f.inTx {
		return fn(ctx, f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.st().clone()
	tx := &fakeRepo{mu: f.mu, state: f.state, products: f.products, inTx: true, failOps: f.failOps}
	if err := fn(ctx, tx); err != nil {
		*f.state = snapshot
		return err
	}
	return nil
}

func (f *fakeRepo) get(id int64) (*Quotation, error) {
	q, ok := f.st().quotations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if email, ok := f.st().users[q.CreatedBy]; ok {
		q.Creator = &UserRef{ID: q.CreatedBy, Email: email}
	}
	return &q, nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	defer f.lock()()
	if err := f.fail("get"); err != nil {
		return nil, err
	}
	return f.get(id)
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	defer f.lock()()
	return f.get(id)
}

func (f *fakeRepo) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	defer f.lock()()
	if err := f.fail("list"); err != nil {
		return nil, 0, err
	}
	var all []Quotation
	for _, q := range f.st().quotations {
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		if req.CreatedBy != nil && q.CreatedBy != *req.CreatedBy {
			continue
		}
		all = append(all, q)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	page := shared.NewPagination(req.Page, req.PerPage, len(all))
	start := min(page.Offset(), len(all))
	end := min(start+page.PerPage, len(all))
	return all[start:end], len(all), nil
}

func (f *fakeRepo) ListItems(ctx context.Context, quotationID int64) ([]Item, error) {
	defer f.lock()()
	return append([]Item(nil), f.st().items[quotationID]...), nil
}

func (f *fakeRepo) ListAttachments(ctx context.Context, quotationID int64) ([]Attachment, error) {
	defer f.lock()()
	var out []Attachment
	for _, a := range f.st().attachments {
		if a.QuotationID == quotationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActivities(ctx context.Context, quotationID int64, limit int) ([]Activity, error) {
	defer f.lock()()
	var out []Activity
	for i := len(f.st().activities) - 1; i >= 0; i-- {
		a := f.st().activities[i]
		if a.QuotationID != quotationID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) FindProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	if err := f.fail("products"); err != nil {
		return nil, err
	}
	out := make(map[int64]Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeRepo) NextNumber(ctx context.Context, at time.Time) (string, error) {
	defer f.lock()()
	period := at.Format("200601")
	f.st().sequences[period]++
	return FormatNumber(at, f.st().sequences[period]), nil
}

func (f *fakeRepo) Insert(ctx context.Context, q *Quotation) error {
	defer f.lock()()
	if err := f.fail("insert"); err != nil {
		return err
	}
	for _, existing := range f.st().quotations {
		if existing.Number == q.Number {
			return ErrNumberTaken
		}
	}
	f.st().nextID++
	q.ID = f.st().nextID
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	stored := *q
	stored.Items, stored.Activities, stored.Attachments, stored.Creator = nil, nil, nil, nil
	f.st().quotations[q.ID] = stored
	return nil
}

func (f *fakeRepo) UpdateHeader(ctx context.Context, q *Quotation, expected QuotationStatus) error {
	defer f.lock()()
	cur, ok := f.st().quotations[q.ID]
	if !ok || cur.Status != expected {
		return ErrStatusChanged
	}
	stored := *q
	stored.Number, stored.Status, stored.CreatedBy, stored.CreatedAt = cur.Number, cur.Status, cur.CreatedBy, cur.CreatedAt
	stored.Items, stored.Activities, stored.Attachments, stored.Creator = nil, nil, nil, nil
	stored.UpdatedAt = time.Now()
	f.st().quotations[q.ID] = stored
	return nil
}

func (f *fakeRepo) ReplaceItems(ctx context.Context, quotationID int64, items []Item) error {
	defer f.lock()()
	for i := range items {
		f.st().nextID++
		items[i].ID = f.st().nextID
		items[i].QuotationID = quotationID
	}
	f.st().items[quotationID] = append([]Item(nil), items...)
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id int64, from, to QuotationStatus, decidedBy *int64) error {
	defer f.lock()()
	q, ok := f.st().quotations[id]
	if !ok || q.Status != from {
		return ErrStatusChanged
	}
	q.Status = to
	if decidedBy != nil {
		by := *decidedBy
		now := time.Now()
		q.DecidedBy, q.DecidedAt = &by, &now
	}
	f.st().quotations[id] = q
	return nil
}

func (f *fakeRepo) InsertActivity(ctx context.Context, a Activity) (Activity, error) {
	defer f.lock()()
	if err := f.fail("activity"); err != nil {
		return Activity{}, err
	}
	f.st().nextID++
	a.ID = f.st().nextID
	a.CreatedAt = time.Now()
	f.st().activities = append(f.st().activities, a)
	return a, nil
}

func (f *fakeRepo) InsertAttachment(ctx context.Context, a Attachment) (Attachment, error) {
	defer f.lock()()
	f.st().nextID++
	a.ID = f.st().nextID
	a.CreatedAt = time.Now()
	f.st().attachments = append(f.st().attachments, a)
	return a, nil
}

func (f *fakeRepo) InsertNotification(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	defer f.lock()()
	if err := f.fail("notification"); err != nil {
		return notifications.Notification{}, err
	}
	f.st().nextID++
	n.ID = f.st().nextID
	n.CreatedAt = time.Now()
	f.st().notifications = append(f.st().notifications, n)
	return n, nil
}

func (f *fakeRepo) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]int64, error) {
	defer f.lock()()
	today := dateOf(asOf)
	var ids []int64
	for id, q := range f.st().quotations {
		if (q.Status == QuotationStatusDraft || q.Status == QuotationStatusPending) && q.ValidUntil.Before(today) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// occupy stores a quotation holding number so the next allocation collides.
func (f *fakeRepo) occupy(number string) {
	defer f.lock()()
	f.st().nextID++
	f.st().quotations[f.st().nextID] = Quotation{ID: f.st().nextID, Number: number, Status: QuotationStatusCancelled, CreatedBy: 11}
}

// setValidUntil rewrites the validity date, as if time had passed.
func (f *fakeRepo) setValidUntil(id int64, validUntil time.Time) {
	defer f.lock()()
	q := f.st().quotations[id]
	q.ValidUntil = validUntil
	f.st().quotations[id] = q
}

func (f *fakeRepo) activitiesOf(id int64) []Activity {
	defer f.lock()()
	var out []Activity
	for _, a := range f.st().activities {
		if a.QuotationID == id {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeRepo) notificationsFor(userID int64) []notifications.Notification {
	defer f.lock()()
	var out []notifications.Notification
	for _, n := range f.st().notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeRepo) count() int {
	defer f.lock()()
	return len(f.st().quotations)
}

func (f *fakeRepo) status(id int64) QuotationStatus {
	defer f.lock()()
	return f.st().quotations[id].Status
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notifications.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n notifications.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
}

func (m *recordingMetrics) ObserveTransition(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memIdempotency) Claim(ctx context.Context, scope, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]bool)
	}
	if g.keys[scope+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	g.keys[scope+"/"+key] = true
	return nil
}

func (g *memIdempotency) Release(ctx context.Context, scope, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, scope+"/"+key)
	return nil
}
