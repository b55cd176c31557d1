// Package pricing computes license prices for beats. All amounts are integer
// cents.
package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for pricing.
var (
	// ErrUnknownLicense is returned for license names outside basic, premium and exclusive.
	ErrUnknownLicense = errors.New("pricing: unknown license")
	// ErrNoPrice is returned when neither a tier price nor a base price is set.
	ErrNoPrice = errors.New("pricing: no price set")
)

// License is a purchasable usage right.
type License string

// Licenses offered for every beat.
const (
	LicenseBasic     License = "basic"
	LicensePremium   License = "premium"
	LicenseExclusive License = "exclusive"
)

// Licenses lists every license in display order.
var Licenses = []License{LicenseBasic, LicensePremium, LicenseExclusive}

// ParseLicense converts a case-insensitive name into a License.
func ParseLicense(s string) (License, error) {
	l := License(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLicense, s)
	}
	return l, nil
}

// IsValid returns true if the license is known.
func (l License) IsValid() bool {
	_, ok := multipliers[l]
	return ok
}

// multiplier is a rational factor applied to the base price.
type multiplier struct {
	num, den int64
}

// Estimates used when a beat has a base price but no explicit tier price.
var multipliers = map[License]multiplier{
	LicenseBasic:     {num: 1, den: 2},
	LicensePremium:   {num: 1, den: 1},
	LicenseExclusive: {num: 3, den: 1},
}

// Tiers holds a beat's prices in cents. Zero means the price is not set.
type Tiers struct {
	Base      int64 `json:"base"`
	Basic     int64 `json:"basic,omitempty"`
	Premium   int64 `json:"premium,omitempty"`
	Exclusive int64 `json:"exclusive,omitempty"`
}

func (t Tiers) explicit(l License) int64 {
	switch l {
	case LicenseBasic:
		return t.Basic
	case LicensePremium:
		return t.Premium
	case LicenseExclusive:
		return t.Exclusive
	}
	return 0
}

// Quote is the price of one license.
type Quote struct {
	License   License `json:"license"`
	Amount    int64   `json:"amount"`
	Estimated bool    `json:"estimated"`
}

// Price returns the price of license l. An explicit tier price wins;
// otherwise the price is estimated from Base and marked Estimated.
// Estimates round half a cent up.
func Price(t Tiers, l License) (Quote, error) {
	m, ok := multipliers[l]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownLicense, l)
	}

	if p := t.explicit(l); p > 0 {
		return Quote{License: l, Amount: p}, nil
	}

	if t.Base <= 0 {
		return Quote{}, fmt.Errorf("%w for %s license", ErrNoPrice, l)
	}

	amount := (t.Base*m.num*2 + m.den) / (2 * m.den)
	return Quote{License: l, Amount: amount, Estimated: true}, nil
}

// PriceAll returns quotes for every license that can be priced.
func PriceAll(t Tiers) []Quote {
	quotes := make([]Quote, 0, len(Licenses))
	for _, l := range Licenses {
		if q, err := Price(t, l); err == nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// FormatCents renders an amount as dollars, e.g. 2999 -> "$29.99".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
