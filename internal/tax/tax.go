// Package tax computes GST price triples. All money is integer cents; the
// single rounding point is the per-unit GST amount, half away from zero.
// Nothing elsewhere re-derives tax from an inclusive price.
package tax

import "math"

// PriceFromExGst returns (exGst, gst, incGst) in cents for a unit price
// excluding GST at the given rate. gst = round(ex * rate), inc = ex + gst.
func PriceFromExGst(exGstCents int64, rate float64) (int64, int64, int64) {
	gst := RoundHalfAwayFromZero(float64(exGstCents) * rate)
	return exGstCents, gst, exGstCents + gst
}

// PriceFromIncGst derives the triple from a GST-inclusive price, for catalog
// entry where operators type shelf prices. The ex amount is rounded once;
// gst is the remainder so that ex + gst == inc exactly.
func PriceFromIncGst(incGstCents int64, rate float64) (int64, int64, int64) {
	if rate <= 0 {
		return incGstCents, 0, incGstCents
	}
	ex := RoundHalfAwayFromZero(float64(incGstCents) / (1 + rate))
	return ex, incGstCents - ex, incGstCents
}

// RoundHalfAwayFromZero rounds to the nearest integer cent; ties go away
// from zero (2.5 -> 3, -2.5 -> -3).
func RoundHalfAwayFromZero(v float64) int64 {
	if v >= 0 {
		return int64(math.Floor(v + 0.5))
	}
	return int64(math.Ceil(v - 0.5))
}
