package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TaxRate は内訳表示に使う固定税率（15%）
var TaxRate = decimal.NewFromFloat(0.15)

// TaxRatePercent は表示用の税率
func TaxRatePercent() string {
	return TaxRate.Mul(decimal.NewFromInt(100)).String()
}

// SplitTax は税込金額を小計と税額に分解する
// 合計金額は再計算しないため subtotal + tax は常に total と一致する
func SplitTax(total decimal.Decimal) (subtotal, tax decimal.Decimal) {
	subtotal = total.Div(decimal.NewFromInt(1).Add(TaxRate)).Round(2)
	tax = total.Sub(subtotal)
	return subtotal, tax
}

// FormatCurrency は通貨記号と3桁区切りで金額を整形する
func FormatCurrency(currency string, amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	parts := strings.SplitN(amount.StringFixed(2), ".", 2)

	intPart := parts[0]
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	prefix := ""
	if currency != "" {
		prefix = currency + " "
	}
	return sign + prefix + b.String() + "." + parts[1]
}
