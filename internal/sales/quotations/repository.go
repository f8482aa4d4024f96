package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

var (
	ErrNotFound = fmt.Errorf("quotation: %w", shared.ErrNotFound)
	// ErrNumberTaken means the generated number already exists or the counter
	// row was updated concurrently. The caller retries in a fresh transaction.
	ErrNumberTaken = errors.New("quotation number already taken")
	// ErrStatusChanged means the row no longer has the status the caller read.
	ErrStatusChanged = fmt.Errorf("%w: quotation was changed concurrently", shared.ErrInvalidTransition)
)

const numberDocType = "QT"

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	GetForUpdate(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error)
	ListItems(ctx context.Context, quotationID int64) ([]Item, error)
	ListAttachments(ctx context.Context, quotationID int64) ([]Attachment, error)
	ListActivities(ctx context.Context, quotationID int64, limit int) ([]Activity, error)
	FindProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	NextNumber(ctx context.Context, at time.Time) (string, error)
	Insert(ctx context.Context, q *Quotation) error
	UpdateHeader(ctx context.Context, q *Quotation, expected QuotationStatus) error
	ReplaceItems(ctx context.Context, quotationID int64, items []Item) error
	UpdateStatus(ctx context.Context, id int64, from, to QuotationStatus, decidedBy *int64) error
	InsertActivity(ctx context.Context, a Activity) (Activity, error)
	InsertAttachment(ctx context.Context, a Attachment) (Attachment, error)
	InsertNotification(ctx context.Context, n notifications.Notification) (notifications.Notification, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]int64, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

const quotationColumns = `
	q.id, q.number, q.status, q.currency, q.valid_until, q.subtotal, q.tax_rate,
	q.tax_amount, q.discount, q.shipping_cost, q.total_amount, q.notes, q.terms,
	q.payment_terms, q.revision, q.created_by, q.decided_by, q.decided_at,
	q.created_at, q.updated_at, u.email`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	var creatorEmail pgtype.Text
	err := row.Scan(
		&q.ID, &q.Number, &q.Status, &q.Currency, &q.ValidUntil, &q.Subtotal, &q.TaxRate,
		&q.TaxAmount, &q.Discount, &q.ShippingCost, &q.TotalAmount, &q.Notes, &q.Terms,
		&q.PaymentTerms, &q.Revision, &q.CreatedBy, &q.DecidedBy, &q.DecidedAt,
		&q.CreatedAt, &q.UpdatedAt, &creatorEmail,
	)
	if err != nil {
		return nil, err
	}
	if creatorEmail.Valid {
		q.Creator = &UserRef{ID: q.CreatedBy, Email: creatorEmail.String}
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations q
		LEFT JOIN users u ON u.id = q.created_by
		WHERE q.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// GetForUpdate locks the quotation row until the surrounding transaction ends.
func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations q
		LEFT JOIN users u ON u.id = q.created_by
		WHERE q.id = $1
		FOR UPDATE OF q`, id))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case db.IsSerializationFailure(err):
		return nil, ErrStatusChanged
	}
	return q, err
}

func (r *repository) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	var conditions []string
	var args []any

	if req.Status != nil {
		args = append(args, *req.Status)
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", len(args)))
	}
	if req.CreatedBy != nil {
		args = append(args, *req.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("q.created_by = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations q "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM quotations q
		LEFT JOIN users u ON u.id = q.created_by
		%s
		ORDER BY q.created_at DESC, q.id DESC
		LIMIT $%d OFFSET $%d`, quotationColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func (r *repository) ListItems(ctx context.Context, quotationID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, line_no, product_id, product_name, product_sku, list_price,
		       quantity, unit_price, discount_percent, tax_percent, total, notes
		FROM quotation_items
		WHERE quotation_id = $1
		ORDER BY line_no`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.LineNo, &it.ProductID, &it.ProductName, &it.ProductSKU,
			&it.ListPrice, &it.Quantity, &it.UnitPrice, &it.DiscountPercent, &it.TaxPercent, &it.Total, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) ListAttachments(ctx context.Context, quotationID int64) ([]Attachment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, file_name, url, content_type, size_bytes, uploaded_by, created_at
		FROM quotation_attachments
		WHERE quotation_id = $1
		ORDER BY created_at, id`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.QuotationID, &a.FileName, &a.URL, &a.ContentType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListActivities returns newest first. limit <= 0 returns the full history.
func (r *repository) ListActivities(ctx context.Context, quotationID int64, limit int) ([]Activity, error) {
	var limitArg pgtype.Int8
	if limit > 0 {
		limitArg = pgtype.Int8{Int64: int64(limit), Valid: true}
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, type, description, actor_id, created_at
		FROM quotation_activities
		WHERE quotation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, quotationID, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.QuotationID, &a.Type, &a.Description, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindProducts loads active catalog entries keyed by id. Missing or inactive
// ids are absent from the result.
func (r *repository) FindProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, code, name, price
		FROM products
		WHERE id = ANY($1) AND is_active`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// NextNumber allocates QT-YYMM-NNNN for the period of at.
func (r *repository) NextNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq`, numberDocType, at.Format("200601")).Scan(&seq)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return "", ErrNumberTaken
		}
		return "", err
	}
	return FormatNumber(at, seq), nil
}

// FormatNumber renders a quotation number for the period of at.
func FormatNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", numberDocType, at.Format("0601"), seq)
}

// Insert writes the header and fills q.ID and timestamps. A duplicate number
// yields ErrNumberTaken without aborting the transaction.
func (r *repository) Insert(ctx context.Context, q *Quotation) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotations (
			number, status, currency, valid_until, subtotal, tax_rate, tax_amount, discount,
			shipping_cost, total_amount, notes, terms, payment_terms, revision, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (number) DO NOTHING
		RETURNING id, created_at, updated_at`,
		q.Number, q.Status, q.Currency, q.ValidUntil, q.Subtotal, q.TaxRate, q.TaxAmount, q.Discount,
		q.ShippingCost, q.TotalAmount, q.Notes, q.Terms, q.PaymentTerms, q.Revision, q.CreatedBy,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || db.IsUniqueViolation(err) {
		return ErrNumberTaken
	}
	return err
}

// UpdateHeader writes editable header fields and totals while the row still
// has the expected status.
func (r *repository) UpdateHeader(ctx context.Context, q *Quotation, expected QuotationStatus) error {
	err := r.db.QueryRow(ctx, `
		UPDATE quotations SET
			currency = $3, valid_until = $4, subtotal = $5, tax_rate = $6, tax_amount = $7,
			discount = $8, shipping_cost = $9, total_amount = $10, notes = $11, terms = $12,
			payment_terms = $13, revision = $14, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		q.ID, expected, q.Currency, q.ValidUntil, q.Subtotal, q.TaxRate, q.TaxAmount,
		q.Discount, q.ShippingCost, q.TotalAmount, q.Notes, q.Terms, q.PaymentTerms, q.Revision,
	).Scan(&q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || db.IsSerializationFailure(err) {
		return ErrStatusChanged
	}
	return err
}

func (r *repository) ReplaceItems(ctx context.Context, quotationID int64, items []Item) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id = $1`, quotationID); err != nil {
		return err
	}
	for i := range items {
		it := &items[i]
		it.QuotationID = quotationID
		err := r.db.QueryRow(ctx, `
			INSERT INTO quotation_items (
				quotation_id, line_no, product_id, product_name, product_sku, list_price,
				quantity, unit_price, discount_percent, tax_percent, total, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id`,
			quotationID, it.LineNo, it.ProductID, it.ProductName, it.ProductSKU, it.ListPrice,
			it.Quantity, it.UnitPrice, it.DiscountPercent, it.TaxPercent, it.Total, it.Notes,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert item %d: %w", it.LineNo, err)
		}
	}
	return nil
}

// UpdateStatus moves the quotation from -> to. Zero affected rows means a
// concurrent writer got there first.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to QuotationStatus, decidedBy *int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET
			status = $3,
			decided_by = COALESCE($4, decided_by),
			decided_at = CASE WHEN $4::BIGINT IS NULL THEN decided_at ELSE NOW() END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to, decidedBy)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return ErrStatusChanged
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

// InsertActivity appends to the activity log. Activities are never updated
// or deleted.
func (r *repository) InsertActivity(ctx context.Context, a Activity) (Activity, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotation_activities (quotation_id, type, description, actor_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		a.QuotationID, a.Type, a.Description, a.ActorID,
	).Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (r *repository) InsertAttachment(ctx context.Context, a Attachment) (Attachment, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotation_attachments (quotation_id, file_name, url, content_type, size_bytes, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		a.QuotationID, a.FileName, a.URL, a.ContentType, a.SizeBytes, a.UploadedBy,
	).Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (r *repository) InsertNotification(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	return notifications.Insert(ctx, r.db, n)
}

// ListOverdue returns DRAFT and PENDING quotations whose validity ended
// before the calendar day of asOf.
func (r *repository) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM quotations
		WHERE status IN ($1, $2) AND valid_until < $3::DATE
		ORDER BY valid_until, id
		LIMIT $4`, QuotationStatusDraft, QuotationStatusPending, asOf.Format(time.DateOnly), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
