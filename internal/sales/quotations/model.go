package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuotationStatus string

const (
	QuotationStatusDraft     QuotationStatus = "DRAFT"
	QuotationStatusPending   QuotationStatus = "PENDING"
	QuotationStatusApproved  QuotationStatus = "APPROVED"
	QuotationStatusRejected  QuotationStatus = "REJECTED"
	QuotationStatusExpired   QuotationStatus = "EXPIRED"
	QuotationStatusConverted QuotationStatus = "CONVERTED"
	QuotationStatusCancelled QuotationStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s QuotationStatus) Valid() bool {
	switch s {
	case QuotationStatusDraft, QuotationStatusPending, QuotationStatusApproved, QuotationStatusRejected,
		QuotationStatusExpired, QuotationStatusConverted, QuotationStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed from s.
func (s QuotationStatus) Terminal() bool {
	switch s {
	case QuotationStatusApproved, QuotationStatusRejected, QuotationStatusExpired,
		QuotationStatusConverted, QuotationStatusCancelled:
		return true
	}
	return false
}

type PaymentTerms string

const (
	PaymentTermsPrepaid PaymentTerms = "PREPAID"
	PaymentTermsCOD     PaymentTerms = "COD"
	PaymentTermsNet15   PaymentTerms = "NET_15"
	PaymentTermsNet30   PaymentTerms = "NET_30"
	PaymentTermsNet45   PaymentTerms = "NET_45"
	PaymentTermsNet60   PaymentTerms = "NET_60"
)

type ActivityType string

const (
	ActivityCreated      ActivityType = "CREATED"
	ActivityUpdate       ActivityType = "UPDATE"
	ActivityStatusChange ActivityType = "STATUS_CHANGE"
	ActivityApproved     ActivityType = "APPROVED"
	ActivityRejected     ActivityType = "REJECTED"
)

type Quotation struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	Status       QuotationStatus `json:"status"`
	Currency     string          `json:"currency"`
	ValidUntil   time.Time       `json:"valid_until"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Notes        string          `json:"notes,omitempty"`
	Terms        string          `json:"terms,omitempty"`
	PaymentTerms PaymentTerms    `json:"payment_terms"`
	Revision     int             `json:"revision"`
	CreatedBy    int64           `json:"created_by"`
	DecidedBy    *int64          `json:"decided_by,omitempty"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Creator     *UserRef     `json:"creator,omitempty"`
	Items       []Item       `json:"items,omitempty"`
	Activities  []Activity   `json:"activities,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Item is a priced line. Product name, SKU and list price are copied from
// the catalog when the line is written.
type Item struct {
	ID              int64           `json:"id"`
	QuotationID     int64           `json:"quotation_id"`
	LineNo          int             `json:"line_no"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	ProductSKU      string          `json:"product_sku"`
	ListPrice       decimal.Decimal `json:"list_price"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	Total           decimal.Decimal `json:"total"`
	Notes           string          `json:"notes,omitempty"`
}

type Activity struct {
	ID          int64        `json:"id"`
	QuotationID int64        `json:"quotation_id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	ActorID     int64        `json:"actor_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

type Attachment struct {
	ID          int64     `json:"id"`
	QuotationID int64     `json:"quotation_id"`
	FileName    string    `json:"file_name"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  int64     `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserRef struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Product is the catalog snapshot source for quotation items.
type Product struct {
	ID    int64
	SKU   string
	Name  string
	Price decimal.Decimal
}
