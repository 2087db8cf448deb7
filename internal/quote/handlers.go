package quote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/invoice-pricing/internal/common"
	"github.com/noah-isme/invoice-pricing/internal/invoice"
	"github.com/noah-isme/invoice-pricing/internal/obs"
	"github.com/noah-isme/invoice-pricing/internal/pricing"
)

// QuoteIDHeader carries the identifier of a priced quote on the response.
const QuoteIDHeader = obs.QuoteIDHeader

// Handler exposes the quote API.
type Handler struct {
	Svc      *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler with its request validator.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, validate: validator.New(validator.WithRequiredStructEnabled())}
}

type quoteRequest struct {
	InvoiceID  string      `json:"invoiceId" validate:"max=64"`
	CustomerID string      `json:"customerId" validate:"max=64"`
	Country    string      `json:"country" validate:"max=16"`
	Membership string      `json:"membership" validate:"max=32"`
	Coupon     string      `json:"coupon" validate:"max=32"`
	Items      []quoteItem `json:"items" validate:"max=500,dive"`
}

type quoteItem struct {
	SKU       string `json:"sku" validate:"max=64"`
	Category  string `json:"category" validate:"max=32"`
	UnitPrice int64  `json:"unitPrice" validate:"gte=-100000000000,lte=100000000000"`
	Qty       int    `json:"qty" validate:"gte=-1000000,lte=1000000"`
	Fragile   bool   `json:"fragile"`
}

func (req quoteRequest) toInvoice() *invoice.Invoice {
	inv := &invoice.Invoice{
		InvoiceID:  req.InvoiceID,
		CustomerID: req.CustomerID,
		Country:    req.Country,
		Membership: req.Membership,
		Coupon:     req.Coupon,
		Items:      make([]invoice.LineItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		inv.Items = append(inv.Items, invoice.LineItem{
			SKU:       it.SKU,
			Category:  invoice.Category(it.Category),
			UnitPrice: it.UnitPrice,
			Qty:       it.Qty,
			Fragile:   it.Fragile,
		})
	}
	return inv
}

// Quote prices the invoice in the request body.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.validate == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "quote service not configured", nil)
		return
	}
	var req quoteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		appErr := common.BadRequest("invalid payload", err)
		appErr.Details = fieldProblems(err)
		common.WriteError(w, appErr)
		return
	}
	res, err := h.Svc.Quote(r.Context(), req.toInvoice())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set(QuoteIDHeader, res.QuoteID.String())
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

type rulesView struct {
	Coupons              map[string]pricing.Bps `json:"couponsBps"`
	Memberships          map[string]pricing.Bps `json:"membershipsBps"`
	Tax                  map[string]pricing.Bps `json:"taxBps"`
	Shipping             map[string]any         `json:"shipping"`
	FragileFeePerUnit    pricing.Money          `json:"fragileFeePerUnit"`
	VolumeDiscount       pricing.Threshold      `json:"volumeDiscount"`
	LoyaltyBonus         pricing.Bonus          `json:"loyaltyBonus"`
	UpgradeAdvisoryAbove pricing.Money          `json:"upgradeAdvisoryAbove"`
	Countries            []string               `json:"countries"`
}

// Rules renders the rule tables the engine prices with.
func (h *Handler) Rules(w http.ResponseWriter, _ *http.Request) {
	if h.Svc == nil || h.Svc.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "quote service not configured", nil)
		return
	}
	rules := h.Svc.Engine.Rules()
	view := rulesView{
		Coupons:              rules.Coupons,
		Memberships:          rules.Memberships,
		Tax:                  rules.Tax,
		Shipping:             make(map[string]any, len(rules.Shipping)),
		FragileFeePerUnit:    rules.FragileFeePerUnit,
		VolumeDiscount:       rules.VolumeDiscount,
		LoyaltyBonus:         rules.LoyaltyBonus,
		UpgradeAdvisoryAbove: rules.UpgradeAdvisoryAbove,
		Countries:            rules.Countries(),
	}
	for country, rule := range rules.Shipping {
		if tiers, ok := rule.(pricing.Tiers); ok {
			view.Shipping[country] = map[string]any{"tiers": tiers}
			continue
		}
		view.Shipping[country] = map[string]any{"custom": true}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func fieldProblems(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s failed %s=%s", strings.TrimPrefix(fe.Namespace(), "quoteRequest."), fe.Tag(), fe.Param()))
	}
	sort.Strings(out)
	return out
}
