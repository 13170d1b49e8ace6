package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Pence is an amount of GBP in minor units. All arithmetic stays in Pence;
// pounds only appear when a value is rendered.
type Pence int64

// Pounds renders p as a plain decimal, e.g. "1234.50" or "-3.05".
func (p Pence) Pounds() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// String renders p with a pound sign.
func (p Pence) String() string {
	if p < 0 {
		return "-£" + (-p).Pounds()
	}
	return "£" + p.Pounds()
}

// ParsePounds parses a non-negative pounds amount exactly into pence.
// A leading "£", thousands separators and surrounding spaces are ignored;
// more than two decimal places is an error rather than a rounding.
func ParsePounds(s string) (Pence, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "£")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, hasFrac := strings.Cut(clean, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && (len(frac) == 0 || len(frac) > 2 || !isDigits(frac))) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	pounds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || pounds > (1<<62)/100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	var pence int64
	switch len(frac) {
	case 1:
		pence = int64(frac[0]-'0') * 10
	case 2:
		pence = int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}

	return Pence(pounds*100 + pence), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
