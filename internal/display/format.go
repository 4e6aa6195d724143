// Package display renders positions and prices for terminals and API
// clients. Nothing here feeds back into risk calculations.
package display

import (
	"LiqWatch/internal/risk"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	thousand  = decimal.NewFromInt(1_000)
	million   = decimal.NewFromInt(1_000_000)
	billion   = decimal.NewFromInt(1_000_000_000)
	cent      = decimal.RequireFromString("0.01")
	weiPerEth = decimal.New(1, 18)
	milliEth  = decimal.RequireFromString("0.001")

	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

// FormatUSD renders a dollar amount with K/M/B suffixes above a thousand.
func FormatUSD(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "N/A"
	}
	if value == 0 {
		return "$0.00"
	}
	v := decimal.NewFromFloat(value)
	switch {
	case v.LessThan(cent):
		return "<$0.01"
	case v.LessThan(thousand):
		return "$" + v.StringFixed(2)
	case v.LessThan(million):
		return "$" + v.Div(thousand).StringFixed(2) + "K"
	case v.LessThan(billion):
		return "$" + v.Div(million).StringFixed(2) + "M"
	default:
		return "$" + v.Div(billion).StringFixed(2) + "B"
	}
}

// FormatHealthFactor renders hf with two decimals, ">100" when unbounded or
// above 100.
func FormatHealthFactor(hf risk.HealthFactor) string {
	v, ok := hf.Value()
	if !ok || v > 100 {
		return ">100"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Band is a coarse health classification for display.
type Band int

const (
	BandDanger Band = iota
	BandWarning
	BandModerate
	BandSafe
)

func (b Band) String() string {
	switch b {
	case BandSafe:
		return "safe"
	case BandModerate:
		return "moderate"
	case BandWarning:
		return "warning"
	default:
		return "danger"
	}
}

// Worse reports whether b is a riskier band than other.
func (b Band) Worse(other Band) bool {
	return b < other
}

// HealthBand buckets hf: safe >= 2, moderate >= 1.5, warning >= 1.1,
// otherwise danger. Unbounded is safe.
func HealthBand(hf risk.HealthFactor) Band {
	switch {
	case hf.AtLeast(2):
		return BandSafe
	case hf.AtLeast(1.5):
		return BandModerate
	case hf.AtLeast(1.1):
		return BandWarning
	default:
		return BandDanger
	}
}

// FormatPercent renders value with the given number of decimals and a
// trailing percent sign.
func FormatPercent(value float64, decimals int32) string {
	return decimal.NewFromFloat(value).StringFixed(decimals) + "%"
}

// FormatAddress shortens an address to 0x1234...5678.
func FormatAddress(address string) string {
	return FormatAddressChars(address, 4)
}

// FormatAddressChars keeps chars hex digits on each side.
func FormatAddressChars(address string, chars int) string {
	if address == "" {
		return ""
	}
	if len(address) <= 2*chars+2 {
		return address
	}
	return address[:chars+2] + "..." + address[len(address)-chars:]
}

// IsValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// FormatPrice renders a price with thousands separators and two decimals,
// e.g. $1,234.56.
func FormatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "N/A"
	}
	s := decimal.NewFromFloat(price).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatEthValue renders a wei amount as ETH with four decimals.
func FormatEthValue(wei string) string {
	v, err := decimal.NewFromString(wei)
	if err != nil {
		return "N/A"
	}
	eth := v.Div(weiPerEth)
	if eth.IsZero() {
		return "0 ETH"
	}
	if eth.LessThan(milliEth) {
		return "<0.001 ETH"
	}
	return eth.StringFixed(4) + " ETH"
}

// FormatRelativeTime renders how long ago ts was relative to now.
func FormatRelativeTime(ts, now time.Time) string {
	d := now.Sub(ts)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	default:
		return "just now"
	}
}
