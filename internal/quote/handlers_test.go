package quote_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-pricing/internal/common"
	"github.com/noah-isme/invoice-pricing/internal/pricing"
	"github.com/noah-isme/invoice-pricing/internal/quote"
)

var fixedID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

type quoteResponse struct {
	Data quote.Result `json:"data"`
}

type errorResponse struct {
	Error common.ErrorBody `json:"error"`
}

func newHandler() *quote.Handler {
	return quote.NewHandler(&quote.Service{
		Engine: pricing.NewStandardEngine(),
		Logger: zerolog.Nop(),
		NewID:  func() uuid.UUID { return fixedID },
	})
}

func postQuote(t *testing.T, h *quote.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/quote", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Quote(rec, req)
	return rec
}

func TestQuoteHandler(t *testing.T) {
	h := newHandler()

	t.Run("recognised coupon and membership", func(t *testing.T) {
		rec := postQuote(t, h, `{
			"invoiceId": "INV-9", "customerId": "C-1", "country": "TH",
			"membership": "gold", "coupon": "WELCOME10",
			"items": [{"sku": "BK-1", "category": "book", "unitPrice": 100000, "qty": 2}]
		}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, fixedID.String(), rec.Header().Get(quote.QuoteIDHeader))
		var resp quoteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, fixedID, resp.Data.QuoteID)
		require.Equal(t, "INV-9", resp.Data.InvoiceID)
		require.Equal(t, "TH", resp.Data.Country)
		require.Equal(t, pricing.Money(186180), resp.Data.Total)
		require.Equal(t, pricing.Money(26000), resp.Data.Discount)
		require.Empty(t, resp.Data.Warnings)
	})

	t.Run("unknown coupon warns", func(t *testing.T) {
		rec := postQuote(t, h, `{
			"invoiceId": "INV-10", "customerId": "C-1", "country": "US",
			"membership": "bronze", "coupon": "FAKE20",
			"items": [{"sku": "X", "category": "other", "unitPrice": 15000, "qty": 1}]
		}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp quoteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, pricing.Money(17000), resp.Data.Total)
		require.Equal(t, []string{pricing.WarnUnknownCoupon}, resp.Data.Warnings)
	})

	t.Run("validation problems", func(t *testing.T) {
		rec := postQuote(t, h, `{"customerId": "C-1", "items": []}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, common.CodeValidationFailed, resp.Error.Code)
		require.Contains(t, resp.Error.Message, "Missing invoice_id")
		require.Contains(t, resp.Error.Message, "Invoice must contain items")
		require.Equal(t, []any{"Missing invoice_id", "Invoice must contain items"}, resp.Error.Details)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := postQuote(t, h, `{"items": [`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := postQuote(t, h, `{"invoiceId": "I", "discount": 100}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("transport limits", func(t *testing.T) {
		rec := postQuote(t, h, `{"invoiceId": "I", "customerId": "C", "country": "`+strings.Repeat("X", 17)+`", "items": []}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, common.CodeBadRequest, resp.Error.Code)
		require.Equal(t, []any{"Country failed max=16"}, resp.Error.Details)
	})

	t.Run("item amounts bounded", func(t *testing.T) {
		rec := postQuote(t, h, `{
			"invoiceId": "I", "customerId": "C", "country": "US",
			"items": [{"sku": "X", "category": "other", "unitPrice": 5000000000000000000, "qty": 2000000}]
		}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, []any{
			"Items[0].Qty failed lte=1000000",
			"Items[0].UnitPrice failed lte=100000000000",
		}, resp.Error.Details)
	})

	t.Run("bounded items that overflow pricing", func(t *testing.T) {
		rec := postQuote(t, h, `{
			"invoiceId": "I", "customerId": "C", "country": "TH",
			"items": [{"sku": "X", "category": "other", "unitPrice": 100000000000, "qty": 1000000}]
		}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Empty(t, rec.Header().Get(quote.QuoteIDHeader))
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, common.CodeValidationFailed, resp.Error.Code)
		require.Equal(t, []any{"Invoice amount out of range"}, resp.Error.Details)
	})

	t.Run("non-positive quantity reaches the validator", func(t *testing.T) {
		rec := postQuote(t, h, `{
			"invoiceId": "I", "customerId": "C", "country": "TH",
			"items": [{"sku": "X", "category": "other", "unitPrice": 100, "qty": 0}]
		}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, []any{"Invalid quantity for X"}, resp.Error.Details)
	})
}

func TestRulesHandler(t *testing.T) {
	h := newHandler()
	rec := httptest.NewRecorder()
	h.Rules(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pricing/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Coupons  map[string]int64 `json:"couponsBps"`
			Tax      map[string]int64 `json:"taxBps"`
			Shipping map[string]struct {
				Tiers []pricing.Tier `json:"tiers"`
			} `json:"shipping"`
			Countries []string `json:"countries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1000), resp.Data.Coupons["WELCOME10"])
	require.Equal(t, int64(500), resp.Data.Tax[pricing.DefaultKey])
	require.Equal(t, []pricing.Tier{{Below: 10000, Fee: 1500}, {Below: 30000, Fee: 800}}, resp.Data.Shipping["US"].Tiers)
	require.Equal(t, []string{"DEFAULT", "JP", "TH", "US"}, resp.Data.Countries)
}

func TestQuoteHandlerWithoutService(t *testing.T) {
	h := &quote.Handler{}
	rec := postQuote(t, h, `{}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQuoteHandlerRequiresConstructor(t *testing.T) {
	h := &quote.Handler{Svc: &quote.Service{Engine: pricing.NewStandardEngine(), Logger: zerolog.Nop()}}
	rec := postQuote(t, h, `{"invoiceId": "I", "customerId": "C", "items": [{"sku": "X", "category": "book", "unitPrice": 100, "qty": 1}]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, common.CodeInternal, resp.Error.Code)
}

func TestQuoteHandlerConcurrentRequests(t *testing.T) {
	h := newHandler()
	body := `{"invoiceId": "I", "customerId": "C", "country": "US", "items": [{"sku": "X", "category": "book", "unitPrice": 15000, "qty": 1}]}`
	var wg sync.WaitGroup
	codes := make([]int, 16)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/quote", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.Quote(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()
	for _, code := range codes {
		require.Equal(t, http.StatusOK, code)
	}
}
