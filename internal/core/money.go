// Package core provides the transaction model and the aggregates derived from it.
//
// This file contains money formatting for float aggregates. Amounts are kept as
// float64 so that a non-numeric valor can surface as NaN; formatting goes through
// decimal to get stable two-place rounding.
package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// NotANumber is what FormatMoney prints for NaN and infinite values.
const NotANumber = "NaN"

// FormatMoney renders v with two decimal places and a leading "$",
// e.g. 1234.5 -> "$1234.50" and -100 -> "-$100.00".
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotANumber
	}
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatAmount renders v with two decimal places and no currency sign.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotANumber
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// IsPositive reports whether a balance should be shown as positive. Zero counts
// as positive; NaN and the infinities, which FormatMoney prints as NaN, do not.
func IsPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
