package quotations

import (
	"github.com/shopspring/decimal"
)

type CreateQuotationRequest struct {
	Items        []ItemRequest   `json:"items" validate:"required,min=1,max=200,dive"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	ValidUntil   string          `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	Currency     string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentTerms PaymentTerms    `json:"payment_terms" validate:"omitempty,oneof=PREPAID COD NET_15 NET_30 NET_45 NET_60"`
	Notes        string          `json:"notes" validate:"max=4000"`
	Terms        string          `json:"terms" validate:"max=4000"`
}

// UpdateQuotationRequest replaces the editable content of a quotation. Items
// are replaced wholesale.
type UpdateQuotationRequest CreateQuotationRequest

type ItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1,lte=1000000"`
	// UnitPrice defaults to the catalog price when omitted.
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxPercent      decimal.Decimal  `json:"tax_percent"`
	Notes           string           `json:"notes" validate:"max=1000"`
}

// CheckoutRequest converts cart contents into a quotation awaiting approval.
type CheckoutRequest struct {
	Items        []CartItem   `json:"items" validate:"required,min=1,max=200,dive"`
	Currency     string       `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentTerms PaymentTerms `json:"payment_terms" validate:"omitempty,oneof=PREPAID COD NET_15 NET_30 NET_45 NET_60"`
	Notes        string       `json:"notes" validate:"max=4000"`
}

type CartItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1,lte=1000000"`
}

type DecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Reason string `json:"reason" validate:"max=1000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type AttachmentRequest struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	URL         string `json:"url" validate:"required,url,max=2048"`
	ContentType string `json:"content_type" validate:"required,max=127"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
}

type ListQuotationsRequest struct {
	Status    *QuotationStatus
	CreatedBy *int64
	Page      int
	PerPage   int
}

// Decision actions accepted by Decide.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)
