package pricing

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// DefaultKey is the fallback entry for country-keyed tables.
const DefaultKey = "DEFAULT"

var (
	// ErrMissingDefault is returned when a country-keyed table has no DEFAULT entry.
	ErrMissingDefault = errors.New("pricing table missing DEFAULT entry")
	// ErrNegativeRate is returned when a table carries a negative rate or amount.
	ErrNegativeRate = errors.New("pricing rate must not be negative")
	// ErrRateTooLarge is returned when a discount rate exceeds 100%.
	ErrRateTooLarge = errors.New("discount rate must not exceed 10000 bps")
)

// ShippingRule prices delivery as a pure function of the merchandise subtotal.
type ShippingRule interface {
	Fee(subtotal Money) Money
}

// ShippingFunc adapts an ordinary function to ShippingRule.
type ShippingFunc func(subtotal Money) Money

// Fee implements ShippingRule.
func (f ShippingFunc) Fee(subtotal Money) Money { return f(subtotal) }

// Tier charges Fee while the subtotal is strictly below Below.
type Tier struct {
	Below Money `json:"below"`
	Fee   Money `json:"fee"`
}

// Tiers is a step function over the subtotal. The first tier whose bound exceeds the subtotal wins;
// past the last bound shipping is free.
type Tiers []Tier

// NewTiers returns the tiers ordered by ascending bound.
func NewTiers(tiers ...Tier) Tiers {
	out := slices.Clone(tiers)
	slices.SortStableFunc(out, func(a, b Tier) int { return cmp.Compare(a.Below, b.Below) })
	return Tiers(out)
}

// Fee implements ShippingRule.
func (t Tiers) Fee(subtotal Money) Money {
	for _, tier := range t {
		if subtotal < tier.Below {
			return tier.Fee
		}
	}
	return 0
}

// Flat charges the same fee regardless of subtotal.
func Flat(fee Money) ShippingRule {
	return ShippingFunc(func(Money) Money { return fee })
}

// Threshold describes a percentage granted once the subtotal is strictly above Above.
type Threshold struct {
	Above Money `json:"above"`
	Rate  Bps   `json:"rateBps"`
}

// Bonus describes a flat amount granted once the subtotal is strictly above Above.
type Bonus struct {
	Above  Money `json:"above"`
	Amount Money `json:"amount"`
}

// Rules holds the lookup tables driving the engine. Country keys are upper case, membership tiers
// lower case and coupon codes upper case.
type Rules struct {
	Coupons     map[string]Bps
	Shipping    map[string]ShippingRule
	Tax         map[string]Bps
	Memberships map[string]Bps

	FragileFeePerUnit Money
	// VolumeDiscount applies to every customer, member or not. Zero rate disables it.
	VolumeDiscount Threshold
	// LoyaltyBonus is granted to customers without a recognised tier. Zero amount disables it.
	LoyaltyBonus Bonus
	// UpgradeAdvisoryAbove triggers the membership upgrade warning. Zero disables it.
	UpgradeAdvisoryAbove Money
}

// StandardRules returns the per-country, membership and coupon aware tables.
func StandardRules() Rules {
	return Rules{
		Coupons: map[string]Bps{
			"WELCOME10": 1000,
			"VIP20":     2000,
		},
		Shipping: map[string]ShippingRule{
			"TH":       NewTiers(Tier{Below: 500_00, Fee: 60_00}),
			"JP":       NewTiers(Tier{Below: 4000_00, Fee: 600_00}),
			"US":       NewTiers(Tier{Below: 100_00, Fee: 15_00}, Tier{Below: 300_00, Fee: 8_00}),
			DefaultKey: NewTiers(Tier{Below: 200_00, Fee: 25_00}),
		},
		Tax: map[string]Bps{
			"TH":       700,
			"US":       800,
			"JP":       1000,
			DefaultKey: 500,
		},
		Memberships: map[string]Bps{
			"gold":     300,
			"platinum": 500,
		},
		FragileFeePerUnit:    5_00,
		LoyaltyBonus:         Bonus{Above: 3000_00, Amount: 20_00},
		UpgradeAdvisoryAbove: 10000_00,
	}
}

// FlatRules returns single-bucket tables: one tax rate, no shipping and a volume discount.
func FlatRules() Rules {
	return Rules{
		Coupons:           map[string]Bps{},
		Shipping:          map[string]ShippingRule{DefaultKey: Flat(0)},
		Tax:               map[string]Bps{DefaultKey: 700},
		Memberships:       map[string]Bps{},
		FragileFeePerUnit: 5_00,
		VolumeDiscount:    Threshold{Above: 1000_00, Rate: 1000},
	}
}

// Profile returns the named rule set. Unknown names yield StandardRules.
func Profile(name string) Rules {
	if strings.EqualFold(strings.TrimSpace(name), "flat") {
		return FlatRules()
	}
	return StandardRules()
}

// WithOverrides returns a copy of r with the provided entries merged over its tables.
func (r Rules) WithOverrides(tax, coupons, memberships map[string]Bps) Rules {
	out := r.clone()
	for k, v := range tax {
		out.Tax[normaliseCountry(k)] = v
	}
	for k, v := range coupons {
		out.Coupons[normaliseCoupon(k)] = v
	}
	for k, v := range memberships {
		out.Memberships[normaliseTier(k)] = v
	}
	return out
}

// Validate checks that the tables can price any invoice.
func (r Rules) Validate() error {
	if r.Shipping[DefaultKey] == nil {
		return fmt.Errorf("shipping: %w", ErrMissingDefault)
	}
	if _, ok := r.Tax[DefaultKey]; !ok {
		return fmt.Errorf("tax: %w", ErrMissingDefault)
	}
	for country, rate := range r.Tax {
		if rate < 0 {
			return fmt.Errorf("tax %s: %w", country, ErrNegativeRate)
		}
	}
	if err := checkDiscountTable("coupon", r.Coupons); err != nil {
		return err
	}
	if err := checkDiscountTable("membership", r.Memberships); err != nil {
		return err
	}
	if err := checkDiscountRate("volume discount", r.VolumeDiscount.Rate); err != nil {
		return err
	}
	if r.FragileFeePerUnit < 0 || r.LoyaltyBonus.Amount < 0 || r.UpgradeAdvisoryAbove < 0 {
		return ErrNegativeRate
	}
	return nil
}

// Clone returns a deep copy of the tables.
func (r Rules) Clone() Rules { return r.clone() }

func (r Rules) clone() Rules {
	out := r
	out.Coupons = make(map[string]Bps, len(r.Coupons))
	for k, v := range r.Coupons {
		out.Coupons[normaliseCoupon(k)] = v
	}
	out.Shipping = make(map[string]ShippingRule, len(r.Shipping))
	for k, v := range r.Shipping {
		if t, ok := v.(Tiers); ok {
			v = NewTiers(t...)
		}
		out.Shipping[normaliseCountry(k)] = v
	}
	out.Tax = make(map[string]Bps, len(r.Tax))
	for k, v := range r.Tax {
		out.Tax[normaliseCountry(k)] = v
	}
	out.Memberships = make(map[string]Bps, len(r.Memberships))
	for k, v := range r.Memberships {
		out.Memberships[normaliseTier(k)] = v
	}
	return out
}

func (r Rules) shippingRule(country string) ShippingRule {
	if rule, ok := r.Shipping[country]; ok && rule != nil {
		return rule
	}
	return r.Shipping[DefaultKey]
}

// ResolveCountry returns the table key used for country: the normalised code when either the
// shipping or tax table knows it, DefaultKey otherwise.
func (r Rules) ResolveCountry(country string) string {
	key := normaliseCountry(country)
	if _, ok := r.Tax[key]; ok {
		return key
	}
	if _, ok := r.Shipping[key]; ok {
		return key
	}
	return DefaultKey
}

func (r Rules) taxRate(country string) Bps {
	if rate, ok := r.Tax[country]; ok {
		return rate
	}
	return r.Tax[DefaultKey]
}

// Countries returns the sorted keys of the shipping and tax tables.
func (r Rules) Countries() []string {
	set := make(map[string]struct{}, len(r.Tax)+len(r.Shipping))
	for k := range r.Tax {
		set[k] = struct{}{}
	}
	for k := range r.Shipping {
		set[k] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

func checkDiscountTable(name string, table map[string]Bps) error {
	for key, rate := range table {
		if err := checkDiscountRate(name+" "+key, rate); err != nil {
			return err
		}
	}
	return nil
}

func checkDiscountRate(name string, rate Bps) error {
	if rate < 0 {
		return fmt.Errorf("%s: %w", name, ErrNegativeRate)
	}
	if rate > BpsScale {
		return fmt.Errorf("%s: %w", name, ErrRateTooLarge)
	}
	return nil
}

func normaliseCountry(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }
func normaliseCoupon(v string) string  { return strings.ToUpper(strings.TrimSpace(v)) }
func normaliseTier(v string) string    { return strings.ToLower(strings.TrimSpace(v)) }
