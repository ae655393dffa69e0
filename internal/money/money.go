// Package money turns currency-formatted strings from the portal into
// integer minor-unit amounts. Floating point is never involved: parsing goes
// through shopspring/decimal and rounds half-up (away from zero for
// negative amounts) on any fractional minor unit.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmpty   = errors.New("empty amount")
	ErrInvalid = errors.New("invalid amount")
	ErrRange   = errors.New("amount out of range")
)

// Amount is an integer count of minor units of Currency.
type Amount struct {
	Minor    int64
	Currency string
}

var symbols = []struct {
	sym  string
	code string
}{
	// Longest first so "US$" wins over "$".
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
	{"¥", "JPY"},
	{"Fr.", "CHF"},
}

var zeroDecimalCurrencies = map[string]bool{"JPY": true, "KRW": true, "ISK": true}

// MinorDigits is the number of decimal places of the currency's minor unit.
func MinorDigits(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Parse reads amounts such as "€11.84", "1.234,56 €", "$0.00", "(12.50) USD"
// or "-3,10". The decimal separator is inferred: when both '.' and ',' occur
// the last one is decimal; a lone separator followed by exactly three digits
// after a non-zero integer part is a thousands separator. Currency is empty
// when the text carries neither a symbol nor an ISO code.
func Parse(s string) (Amount, error) {
	return parse(s, 0)
}

// ParseWithSeparator is Parse for callers that know the locale's decimal
// separator ('.' or ',').
func ParseWithSeparator(s string, decimalSep rune) (Amount, error) {
	if decimalSep != '.' && decimalSep != ',' {
		return Amount{}, fmt.Errorf("%w: unsupported decimal separator %q", ErrInvalid, decimalSep)
	}
	return parse(s, decimalSep)
}

func parse(s string, decimalSep rune) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Amount{}, ErrEmpty
	}

	rest, currency := extractCurrency(raw)

	negative := false
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		negative = true
		rest = rest[1 : len(rest)-1]
	}

	var b strings.Builder
	digits := 0
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			negative = true
		case r == '+', r == '\'', r == '’', unicode.IsSpace(r):
			// sign or grouping noise
		default:
			return Amount{}, fmt.Errorf("%w: unexpected %q in %q", ErrInvalid, r, s)
		}
	}
	if digits == 0 {
		return Amount{}, fmt.Errorf("%w: no digits in %q", ErrInvalid, s)
	}

	number, err := normalizeSeparators(b.String(), decimalSep)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}

	d, err := decimal.NewFromString(number)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	if negative {
		d = d.Neg()
	}

	minor := d.Shift(MinorDigits(currency)).Round(0)
	if minor.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Amount{}, fmt.Errorf("%w: %q", ErrRange, s)
	}
	return Amount{Minor: minor.IntPart(), Currency: currency}, nil
}

func extractCurrency(s string) (string, string) {
	for _, sym := range symbols {
		if strings.Contains(s, sym.sym) {
			rest := strings.Replace(s, sym.sym, "", 1)
			// "€ 11.84 EUR" names the currency twice.
			if trimmed := strings.TrimSpace(rest); len(trimmed) > 3 && strings.EqualFold(trimmed[len(trimmed)-3:], sym.code) {
				rest = trimmed[:len(trimmed)-3]
			}
			return rest, sym.code
		}
	}

	// ISO code: a run of three letters anywhere in the text.
	var letters strings.Builder
	start := -1
	for i, r := range s {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			letters.WriteRune(r)
			continue
		}
		if start >= 0 {
			break
		}
	}
	code := strings.ToUpper(letters.String())
	if len(code) == 3 {
		return strings.Replace(s, letters.String(), "", 1), code
	}
	return s, ""
}

// ParseDecimal reads a bare number such as "1,488.25", "1.234,5" or "-0.006"
// with the separator inference of Parse. Only digits, separators and a
// leading sign are accepted.
func ParseDecimal(s string) (decimal.Decimal, error) {
	n := strings.TrimSpace(s)
	negative := false
	if len(n) > 0 && (n[0] == '-' || n[0] == '+') {
		negative = n[0] == '-'
		n = n[1:]
	}
	if n == "" {
		return decimal.Decimal{}, ErrEmpty
	}
	if strings.IndexFunc(n, func(r rune) bool { return (r < '0' || r > '9') && r != '.' && r != ',' }) >= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if last := n[len(n)-1]; last < '0' || last > '9' {
		return decimal.Decimal{}, fmt.Errorf("%w: %q ends in a separator", ErrInvalid, s)
	}

	number, err := normalizeSeparators(n, 0)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	d, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// checkGroups rejects thousands grouping other than three digits per group.
func checkGroups(intPart, thousands string) error {
	groups := strings.Split(intPart, thousands)
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return fmt.Errorf("misplaced thousands separator in %q", intPart)
		}
	}
	return nil
}

func normalizeSeparators(n string, decimalSep rune) (string, error) {
	dots := strings.Count(n, ".")
	commas := strings.Count(n, ",")

	if decimalSep != 0 {
		thousands := ","
		if decimalSep == ',' {
			thousands = "."
		}
		intPart, _, _ := strings.Cut(n, string(decimalSep))
		if err := checkGroups(intPart, thousands); err != nil {
			return "", err
		}
		n = strings.ReplaceAll(n, thousands, "")
		if strings.Count(n, string(decimalSep)) > 1 {
			return "", errors.New("more than one decimal separator")
		}
		return strings.Replace(n, string(decimalSep), ".", 1), nil
	}

	switch {
	case dots == 0 && commas == 0:
		return n, nil
	case dots > 0 && commas > 0:
		dec, thousands := ",", "."
		if strings.LastIndex(n, ".") > strings.LastIndex(n, ",") {
			dec, thousands = ".", ","
		}
		if err := checkGroups(n[:strings.LastIndex(n, dec)], thousands); err != nil {
			return "", err
		}
		n = strings.ReplaceAll(n, thousands, "")
		if strings.Count(n, dec) > 1 {
			return "", errors.New("more than one decimal separator")
		}
		return strings.Replace(n, dec, ".", 1), nil
	}

	sep := "."
	if commas > 0 {
		sep = ","
	}
	if strings.Count(n, sep) > 1 {
		if err := checkGroups(n, sep); err != nil {
			return "", err
		}
		return strings.ReplaceAll(n, sep, ""), nil
	}
	i := strings.Index(n, sep)
	intPart, frac := n[:i], n[i+1:]
	if len(frac) == 3 && strings.TrimLeft(intPart, "0") != "" && len(intPart) <= 3 {
		return intPart + frac, nil
	}
	if intPart == "" {
		intPart = "0"
	}
	return intPart + "." + frac, nil
}

// Format renders an amount as "11.84 EUR".
func Format(a Amount) string {
	digits := MinorDigits(a.Currency)
	s := decimal.New(a.Minor, -digits).StringFixed(digits)
	if a.Currency == "" {
		return s
	}
	return s + " " + a.Currency
}
