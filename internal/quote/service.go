package quote

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/invoice-pricing/internal/common"
	"github.com/noah-isme/invoice-pricing/internal/invoice"
	"github.com/noah-isme/invoice-pricing/internal/obs"
	"github.com/noah-isme/invoice-pricing/internal/pricing"
)

// Result is a priced invoice as returned to API clients.
type Result struct {
	QuoteID   uuid.UUID `json:"quoteId"`
	InvoiceID string    `json:"invoiceId"`
	Country   string    `json:"country"`
	pricing.Summary
}

// Service wraps the pricing engine with logging, metrics and API error mapping.
type Service struct {
	Engine *pricing.Engine
	Logger zerolog.Logger
	NewID  func() uuid.UUID
}

// Quote prices inv. Validation failures are returned as 422 AppErrors carrying the problem list.
func (s *Service) Quote(ctx context.Context, inv *invoice.Invoice) (Result, error) {
	if s.Engine == nil {
		return Result{}, errors.New("quote: pricing engine not configured")
	}
	summary, err := s.Engine.Quote(ctx, inv)
	if err != nil {
		var vErr *invoice.ValidationError
		if errors.As(err, &vErr) {
			obs.ObserveQuote("invalid", "", 0, nil)
			s.Logger.Debug().Strs("problems", vErr.Problems).Msg("invoice rejected")
			return Result{}, common.Unprocessable(vErr.Error(), err, vErr.Problems)
		}
		return Result{}, err
	}

	country := s.Engine.Rules().ResolveCountry(inv.Country)
	res := Result{
		QuoteID:   s.newID(),
		InvoiceID: inv.InvoiceID,
		Country:   country,
		Summary:   summary,
	}
	obs.ObserveQuote("ok", country, summary.Total, summary.Warnings)
	s.Logger.Info().
		Str("quote_id", res.QuoteID.String()).
		Str("invoice_id", inv.InvoiceID).
		Str("country", country).
		Int64("subtotal", summary.Subtotal).
		Int64("discount", summary.Discount).
		Int64("tax", summary.Tax).
		Int64("total", summary.Total).
		Int("warnings", len(summary.Warnings)).
		Msg("invoice quoted")
	return res, nil
}

func (s *Service) newID() uuid.UUID {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New()
}
