package pricing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/invoice-pricing/internal/invoice"
)

const (
	// WarnUnknownCoupon is emitted when a non-blank coupon code is not in the coupon table.
	WarnUnknownCoupon = "Unknown coupon"
	// WarnMembershipUpgrade is emitted for large orders placed without a recognised tier.
	WarnMembershipUpgrade = "Consider membership upgrade"
)

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal           Money    `json:"subtotal"`
	FragileFee         Money    `json:"fragileFee"`
	Shipping           Money    `json:"shipping"`
	VolumeDiscount     Money    `json:"volumeDiscount"`
	MembershipDiscount Money    `json:"membershipDiscount"`
	LoyaltyBonus       Money    `json:"loyaltyBonus"`
	CouponDiscount     Money    `json:"couponDiscount"`
	Discount           Money    `json:"discount"`
	TaxRate            Bps      `json:"taxRateBps"`
	Tax                Money    `json:"tax"`
	Total              Money    `json:"total"`
	Warnings           []string `json:"warnings"`
}

// Engine prices validated invoices against a fixed set of rule tables. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	rules     Rules
	validator invoice.Validator
	tracer    trace.Tracer
}

// Option customises an Engine.
type Option func(*Engine)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer("pricing")
		}
	}
}

// NewEngine copies rules and returns an engine that validates with v before pricing.
func NewEngine(rules Rules, v invoice.Validator, opts ...Option) *Engine {
	e := &Engine{
		rules:     rules.clone(),
		validator: v,
		tracer:    otel.Tracer("pricing"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewStandardEngine prices with StandardRules and the strict validator.
func NewStandardEngine(opts ...Option) *Engine {
	return NewEngine(StandardRules(), invoice.StrictValidator(), opts...)
}

// NewFlatEngine prices with FlatRules and the lenient validator.
func NewFlatEngine(opts ...Option) *Engine {
	return NewEngine(FlatRules(), invoice.LenientValidator(), opts...)
}

// Rules returns a copy of the engine's tables.
func (e *Engine) Rules() Rules { return e.rules.clone() }

// Validate reports the problems the engine's validator finds on inv.
func (e *Engine) Validate(inv *invoice.Invoice) []string { return e.validator.Validate(inv) }

// ComputeTotal returns the amount owed for inv and any advisory warnings.
func (e *Engine) ComputeTotal(ctx context.Context, inv *invoice.Invoice) (Money, []string, error) {
	s, err := e.Quote(ctx, inv)
	if err != nil {
		return 0, nil, err
	}
	return s.Total, s.Warnings, nil
}

// Quote validates inv and runs the pricing pipeline. The only error is a *invoice.ValidationError:
// either the validator's problems, or an amount that does not fit in int64 minor units.
func (e *Engine) Quote(ctx context.Context, inv *invoice.Invoice) (Summary, error) {
	_, span := e.tracer.Start(ctx, "invoice.quote")
	defer span.End()

	err := e.validator.EnsureValid(inv)
	var s Summary
	if err == nil {
		s, err = e.price(inv)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid invoice")
		return Summary{}, err
	}

	span.SetAttributes(
		attribute.String("invoice.id", inv.InvoiceID),
		attribute.String("invoice.country", inv.CountryCode()),
		attribute.Int("invoice.items", len(inv.Items)),
		attribute.Int64("invoice.subtotal", s.Subtotal),
		attribute.Int64("invoice.total", s.Total),
		attribute.Int("invoice.warnings", len(s.Warnings)),
	)
	return s, nil
}

func (e *Engine) price(inv *invoice.Invoice) (Summary, error) {
	country := inv.CountryCode()
	s := Summary{Warnings: []string{}}

	var err error
	if s.Subtotal, s.FragileFee, err = e.itemAmounts(inv.Items); err != nil {
		return Summary{}, err
	}
	s.Shipping = e.rules.shippingRule(country).Fee(s.Subtotal)

	rate, member := e.rules.Memberships[inv.MembershipTier()]
	if vd := e.rules.VolumeDiscount; vd.Rate > 0 && s.Subtotal > vd.Above {
		if s.VolumeDiscount, err = ApplyBps(s.Subtotal, vd.Rate); err != nil {
			return Summary{}, outOfRange()
		}
	}
	if member {
		if s.MembershipDiscount, err = ApplyBps(s.Subtotal, rate); err != nil {
			return Summary{}, outOfRange()
		}
	} else if lb := e.rules.LoyaltyBonus; lb.Amount > 0 && s.Subtotal > lb.Above {
		s.LoyaltyBonus = lb.Amount
	}
	if code := inv.CouponCode(); code != "" {
		if couponRate, ok := e.rules.Coupons[code]; ok {
			if s.CouponDiscount, err = ApplyBps(s.Subtotal, couponRate); err != nil {
				return Summary{}, outOfRange()
			}
		} else {
			s.Warnings = append(s.Warnings, WarnUnknownCoupon)
		}
	}
	discount, ok := sumMoney(s.VolumeDiscount, s.MembershipDiscount, s.LoyaltyBonus, s.CouponDiscount)
	if !ok {
		return Summary{}, outOfRange()
	}
	s.Discount = discount

	s.TaxRate = e.rules.taxRate(country)
	taxable, ok := subMoney(s.Subtotal, s.Discount)
	if !ok {
		return Summary{}, outOfRange()
	}
	if s.Tax, err = ApplyBps(taxable, s.TaxRate); err != nil {
		return Summary{}, outOfRange()
	}

	gross, ok := sumMoney(s.Subtotal, s.Shipping, s.FragileFee, s.Tax)
	if !ok {
		return Summary{}, outOfRange()
	}
	if s.Total, ok = subMoney(gross, s.Discount); !ok {
		return Summary{}, outOfRange()
	}
	if s.Total < 0 {
		s.Total = 0
	}

	if limit := e.rules.UpgradeAdvisoryAbove; limit > 0 && s.Subtotal > limit && !member {
		s.Warnings = append(s.Warnings, WarnMembershipUpgrade)
	}
	return s, nil
}

// itemAmounts returns the subtotal and fragile surcharge, reporting every item whose line amount or
// running sum does not fit in int64.
func (e *Engine) itemAmounts(items []invoice.LineItem) (Money, Money, error) {
	var problems []string
	var subtotal, fragile Money
	for _, it := range items {
		line, ok := mulMoney(it.UnitPrice, Money(it.Qty))
		if ok {
			subtotal, ok = addMoney(subtotal, line)
		}
		if ok && it.Fragile {
			var fee Money
			if fee, ok = mulMoney(e.rules.FragileFeePerUnit, Money(it.Qty)); ok {
				fragile, ok = addMoney(fragile, fee)
			}
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("Amount out of range for %s", it.SKU))
		}
	}
	if len(problems) > 0 {
		return 0, 0, &invoice.ValidationError{Problems: problems}
	}
	return subtotal, fragile, nil
}

func outOfRange() error {
	return &invoice.ValidationError{Problems: []string{"Invoice amount out of range"}}
}
