package entity

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// ApplyVAT recomputes every line's net, VAT and gross amounts from its Rate
// and Qty, then the document totals. vatIncluded says whether Rate already
// carries VAT: when true the line amount is treated as gross and the net is
// backed out; when false VAT is added on top. Lines with a zero VAT rate
// pass through unchanged either way.
//
// All arithmetic stays in decimals at full precision; rounding to bani
// happens only at presentation and comparison time.
func (e *EFactura) ApplyVAT(vatIncluded bool) {
	e.NetTotal = decimal.Zero
	e.VATTotal = decimal.Zero
	e.Total = decimal.Zero

	for i := range e.Items {
		item := &e.Items[i]
		amount := item.Qty.Mul(item.Rate)

		switch {
		case item.VATRate.IsZero():
			item.NetRate = item.Rate
			item.NetAmount = amount
			item.VATAmount = decimal.Zero
			item.Amount = amount

		case vatIncluded:
			divider := one.Add(item.VATRate.Div(hundred))
			item.NetRate = item.Rate.Div(divider)
			item.NetAmount = amount.Div(divider)
			item.VATAmount = amount.Sub(item.NetAmount)
			item.Amount = amount

		default:
			vat := amount.Mul(item.VATRate.Div(hundred))
			item.NetRate = item.Rate
			item.NetAmount = amount
			item.VATAmount = vat
			item.Amount = amount.Add(vat)
		}

		e.NetTotal = e.NetTotal.Add(item.NetAmount)
		e.VATTotal = e.VATTotal.Add(item.VATAmount)
		e.Total = e.Total.Add(item.Amount)
	}
}
