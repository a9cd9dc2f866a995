package tax

import "testing"

func TestPriceFromExGst(t *testing.T) {
	cases := []struct {
		ex   int64
		rate float64
		gst  int64
		inc  int64
	}{
		{350, 0.10, 35, 385},
		{345, 0.10, 35, 380}, // 34.5 rounds away from zero
		{344, 0.10, 34, 378},
		{0, 0.10, 0, 0},
		{100, 0, 0, 100},
	}
	for _, c := range cases {
		ex, gst, inc := PriceFromExGst(c.ex, c.rate)
		if ex != c.ex || gst != c.gst || inc != c.inc {
			t.Fatalf("PriceFromExGst(%d, %v) = (%d, %d, %d), want (%d, %d, %d)",
				c.ex, c.rate, ex, gst, inc, c.ex, c.gst, c.inc)
		}
	}
}

func TestPriceFromIncGstPreservesInclusivePrice(t *testing.T) {
	cases := []struct {
		inc  int64
		rate float64
		ex   int64
	}{
		{385, 0.10, 350},
		{380, 0.10, 345},
		{100, 0.10, 91},
		{100, 0, 100},
	}
	for _, c := range cases {
		ex, gst, inc := PriceFromIncGst(c.inc, c.rate)
		if inc != c.inc {
			t.Fatalf("PriceFromIncGst(%d, %v) changed the inclusive price to %d", c.inc, c.rate, inc)
		}
		if ex+gst != inc {
			t.Fatalf("PriceFromIncGst(%d, %v): ex %d + gst %d != inc %d", c.inc, c.rate, ex, gst, inc)
		}
		if ex != c.ex {
			t.Fatalf("PriceFromIncGst(%d, %v) ex = %d, want %d", c.inc, c.rate, ex, c.ex)
		}
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{2.5, 3},
		{-2.5, -3},
		{2.4, 2},
		{-2.4, -2},
		{2.6, 3},
		{0, 0},
	}
	for _, c := range cases {
		if got := RoundHalfAwayFromZero(c.in); got != c.want {
			t.Fatalf("RoundHalfAwayFromZero(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}
