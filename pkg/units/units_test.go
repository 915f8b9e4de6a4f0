package units_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/opolis/payledger/pkg/units"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int32
		want     string
	}{
		{"2500", 18, "2500000000000000000000"},
		{"1.5", 6, "1500000"},
		{" 42 ", 0, "42"},
		{"0.000001", 6, "1"},
	}
	for _, tc := range cases {
		got, err := units.ParseUnits(tc.in, tc.decimals)
		if err != nil {
			t.Errorf("ParseUnits(%q, %d): %v", tc.in, tc.decimals, err)
			continue
		}
		if got.Dec() != tc.want {
			t.Errorf("ParseUnits(%q, %d) = %s, want %s", tc.in, tc.decimals, got.Dec(), tc.want)
		}
	}
}

func TestParseUnits_errors(t *testing.T) {
	if _, err := units.ParseUnits("-1", 18); !errors.Is(err, units.ErrNegative) {
		t.Errorf("negative: got %v", err)
	}
	if _, err := units.ParseUnits("1.5", 0); !errors.Is(err, units.ErrPrecision) {
		t.Errorf("precision: got %v", err)
	}
	if _, err := units.ParseUnits("1e80", 0); !errors.Is(err, units.ErrOverflow) {
		t.Errorf("overflow: got %v", err)
	}
	if _, err := units.ParseUnits("abc", 18); err == nil {
		t.Error("expected parse error")
	}
}

func TestFormat(t *testing.T) {
	big2500, _ := units.ParseUnits("2500", 18)
	cases := []struct {
		amount   *uint256.Int
		decimals int32
		want     string
	}{
		{big2500, 18, "2,500"},
		{uint256.NewInt(1234567), 3, "1,234.567"},
		{uint256.NewInt(1000001), 6, "1.000001"},
		{uint256.NewInt(1500000), 6, "1.5"},
		{uint256.NewInt(1234567), 0, "1,234,567"},
		{uint256.NewInt(5), 2, "0.05"},
		{nil, 18, "0"},
	}
	for _, tc := range cases {
		if got := units.Format(tc.amount, tc.decimals); got != tc.want {
			t.Errorf("Format(%v, %d) = %q, want %q", tc.amount, tc.decimals, got, tc.want)
		}
	}
}
