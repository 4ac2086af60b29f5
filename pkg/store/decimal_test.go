package store

import "testing"

func TestIsNonNegativeDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0", true},
		{"7", true},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", true}, // max uint256
		{"", false},
		{"abc", false},
		{"-1", false},
		{"1.5", false},
	}
	for _, c := range cases {
		if got := isNonNegativeDecimal(c.in); got != c.want {
			t.Errorf("isNonNegativeDecimal(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
