// Package pricing values quotation lines and aggregates them into document totals.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// MoneyPlaces is the number of decimal places persisted for monetary amounts.
const MoneyPlaces = 2

// PercentPlaces is the number of decimal places persisted for rates.
const PercentPlaces = 4

var hundred = decimal.NewFromInt(100)

// LineAmounts is the valuation of a single quotation line.
type LineAmounts struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Totals is the aggregated valuation of a quotation.
type Totals struct {
	Subtotal     decimal.Decimal
	TaxRate      decimal.Decimal
	TaxAmount    decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

// Round2 rounds half away from zero to MoneyPlaces.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// LineTotal values a line from quantity, unit price and the per-line discount
// and tax percentages. The result is always computed here; caller supplied
// totals are never trusted. Intermediate amounts keep full precision and only
// the reported figures are rounded.
func LineTotal(quantity int, unitPrice, discountPercent, taxPercent decimal.Decimal) (LineAmounts, error) {
	if quantity < 1 {
		return LineAmounts{}, fmt.Errorf("%w: quantity must be at least 1", shared.ErrValidation)
	}
	if err := CheckMoney("unit price", unitPrice); err != nil {
		return LineAmounts{}, err
	}
	if err := CheckPercent("discount", discountPercent); err != nil {
		return LineAmounts{}, err
	}
	if err := CheckPercent("tax", taxPercent); err != nil {
		return LineAmounts{}, err
	}

	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	discount := gross.Mul(discountPercent).Div(hundred)
	net := gross.Sub(discount)
	tax := net.Mul(taxPercent).Div(hundred)
	return LineAmounts{
		Gross:    gross,
		Discount: Round2(discount),
		Tax:      Round2(tax),
		Total:    Round2(net.Add(tax)),
	}, nil
}

// Aggregate sums line totals and applies the document level tax rate, flat
// discount and shipping cost:
//
//	subtotal = sum(lines)
//	tax      = subtotal * taxRate / 100
//	total    = subtotal + tax - discount + shipping
//
// The total is rounded once from the unrounded tax. It may be negative when
// the discount outweighs everything else; callers decide whether to accept it.
func Aggregate(lineTotals []decimal.Decimal, taxRate, discount, shippingCost decimal.Decimal) (Totals, error) {
	if err := CheckPercent("tax rate", taxRate); err != nil {
		return Totals{}, err
	}
	if err := CheckMoney("discount", discount); err != nil {
		return Totals{}, err
	}
	if err := CheckMoney("shipping cost", shippingCost); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for _, t := range lineTotals {
		subtotal = subtotal.Add(t)
	}
	subtotal = Round2(subtotal)
	tax := subtotal.Mul(taxRate).Div(hundred)
	return Totals{
		Subtotal:     subtotal,
		TaxRate:      taxRate,
		TaxAmount:    Round2(tax),
		Discount:     discount,
		ShippingCost: shippingCost,
		Total:        Round2(subtotal.Add(tax).Sub(discount).Add(shippingCost)),
	}, nil
}

// CheckMoney rejects negative amounts and amounts finer than a cent.
func CheckMoney(name string, v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", shared.ErrValidation, name)
	}
	if !v.Equal(v.Round(MoneyPlaces)) {
		return fmt.Errorf("%w: %s allows at most %d decimal places", shared.ErrValidation, name, MoneyPlaces)
	}
	return nil
}

// CheckPercent accepts 0..100 with at most PercentPlaces decimals.
func CheckPercent(name string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s must be between 0 and 100", shared.ErrValidation, name)
	}
	if !v.Equal(v.Round(PercentPlaces)) {
		return fmt.Errorf("%w: %s allows at most %d decimal places", shared.ErrValidation, name, PercentPlaces)
	}
	return nil
}
