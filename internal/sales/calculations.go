package sales

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CalculateLineTotals computes discount, tax, and line total for one line.
// Each derived amount is rounded to the minor currency unit so the sum of
// persisted lines equals the persisted header totals exactly.
func CalculateLineTotals(quantity, unitPrice, discountPercent, taxPercent decimal.Decimal) (discountAmount, taxAmount, lineTotal decimal.Decimal) {
	grossAmount := quantity.Mul(unitPrice)
	discountAmount = grossAmount.Mul(discountPercent).Div(hundred).Round(2)
	netAmount := grossAmount.Sub(discountAmount)
	taxAmount = netAmount.Mul(taxPercent).Div(hundred).Round(2)
	lineTotal = netAmount.Add(taxAmount).Round(2)
	return
}

// totalsFromLines sums line requests into header amounts.
func totalsFromLines(lines []CreateSaleLineReq) (subtotal, discount, tax, total decimal.Decimal) {
	for _, line := range lines {
		d, t, lt := CalculateLineTotals(line.Quantity, line.UnitPrice, line.DiscountPercent, line.TaxPercent)
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitPrice).Round(2))
		discount = discount.Add(d)
		tax = tax.Add(t)
		total = total.Add(lt)
	}
	return
}
