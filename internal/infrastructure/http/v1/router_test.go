package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app/apptest"
	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/auth"
	"tradeledger/internal/infrastructure/http/v1/middleware"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Code    string         `json:"code"`
		Field   string         `json:"field"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"errors"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	fx     *apptest.Fixture
	token  string
}

func newServer(t *testing.T, mutate ...func(*RouterConfig)) *testServer {
	t.Helper()
	fx := apptest.New(t)
	cfg := RouterConfig{Services: fx.Services, Logger: logger.NewNop()}
	for _, m := range mutate {
		m(&cfg)
	}
	return &testServer{t: t, router: NewRouter(cfg), fx: fx}
}

func (s *testServer) do(method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func dec(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(toString(v))
	require.NoError(t, err)
	return d
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return decimal.NewFromFloat(x).String()
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

var oneLine = map[string]any{
	"direction":       "sales",
	"counterpartyRef": "CLI-001",
	"lines": []map[string]any{
		{"description": "consulting", "quantity": "2", "unitPrice": "50", "taxRate": "18"},
	},
}

func (s *testServer) createInvoice(body map[string]any) string {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/v1/invoices", body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	inv := decode[map[string]any](s.t, env.Data)
	return inv["number"].(string)
}

func TestInvoiceLifecycle_EndToEnd(t *testing.T) {
	s := newServer(t)

	number := s.createInvoice(oneLine)
	assert.Regexp(t, `^FAC-\d{4}-\d{5}$`, number)

	w, env := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/validate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	inv := decode[map[string]any](t, env.Data)
	assert.Equal(t, "validated", inv["status"])
	assert.True(t, dec(t, inv["amountTtc"]).Equal(decimal.RequireFromString("118")))

	w, env = s.do(http.MethodGet, "/api/v1/invoices/"+number+"/journal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	journal := decode[map[string]any](t, env.Data)
	assert.Equal(t, journal["totalDebit"], journal["totalCredit"])
	assert.Equal(t, "118.00", journal["totalDebit"])

	w, env = s.do(http.MethodPost, "/api/v1/invoices/"+number+"/payments", map[string]any{
		"amount": "118", "mode": "transfer", "reference": "VIR-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	paid := decode[map[string]any](t, env.Data)
	balance := paid["balance"].(map[string]any)
	assert.Equal(t, true, balance["settled"])
	assert.True(t, dec(t, balance["outstanding"]).IsZero())

	_, env = s.do(http.MethodGet, "/api/v1/invoices/"+number, nil)
	assert.Equal(t, true, decode[map[string]any](t, env.Data)["settled"])

	// invoice + settlement batches, still balanced
	_, env = s.do(http.MethodGet, "/api/v1/invoices/"+number+"/journal", nil)
	journal = decode[map[string]any](t, env.Data)
	assert.Equal(t, "236.00", journal["totalDebit"])
	assert.Equal(t, journal["totalDebit"], journal["totalCredit"])
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	s := newServer(t)
	number := s.createInvoice(map[string]any{
		"direction":       "sales",
		"type":            "proforma",
		"counterpartyRef": "CLI-001",
	})

	w, env := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/validate", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	require.Len(t, env.Errors, 2)
	fields := []string{env.Errors[0].Field, env.Errors[1].Field}
	assert.ElementsMatch(t, []string{"type", "lines"}, fields)
	assert.Equal(t, apperror.CodeValidation, env.Errors[0].Code)
}

func TestMutatingValidatedInvoice_IsInvalidState(t *testing.T) {
	s := newServer(t)
	number := s.createInvoice(oneLine)
	s.do(http.MethodPost, "/api/v1/invoices/"+number+"/validate", nil)

	w, env := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/lines", map[string]any{
		"description": "late", "quantity": "1", "unitPrice": "10",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, apperror.CodeInvalidState, env.Errors[0].Code)
}

func TestRecordPayment_Overpayment(t *testing.T) {
	s := newServer(t)
	number := s.createInvoice(oneLine)
	s.do(http.MethodPost, "/api/v1/invoices/"+number+"/validate", nil)

	w, _ := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/payments", map[string]any{
		"amount": "100", "mode": "cash",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/payments", map[string]any{
		"amount": "20", "mode": "cash",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, apperror.CodeOverpayment, env.Errors[0].Code)
	assert.True(t, dec(t, env.Errors[0].Details["max_acceptable"]).Equal(decimal.RequireFromString("18")))
}

func TestDraftLineEditing(t *testing.T) {
	s := newServer(t)
	number := s.createInvoice(oneLine)

	_, env := s.do(http.MethodGet, "/api/v1/invoices/"+number, nil)
	inv := decode[map[string]any](t, env.Data)
	lineID := inv["lines"].([]any)[0].(map[string]any)["lineId"].(string)

	w, env := s.do(http.MethodPatch, "/api/v1/invoices/"+number+"/lines/"+lineID, map[string]any{"quantity": "3"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	inv = decode[map[string]any](t, env.Data)
	assert.True(t, dec(t, inv["amountHt"]).Equal(decimal.RequireFromString("150")))

	w, _ = s.do(http.MethodDelete, "/api/v1/invoices/"+number+"/lines/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodDelete, "/api/v1/invoices/"+number+"/lines/"+lineID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inv = decode[map[string]any](t, env.Data)
	assert.Empty(t, inv["lines"])
	assert.True(t, dec(t, inv["amountTtc"]).IsZero())
}

func TestPreview_StoresNothing(t *testing.T) {
	s := newServer(t)
	w, env := s.do(http.MethodPost, "/api/v1/invoices/preview", map[string]any{
		"lines": []map[string]any{
			{"description": "a", "quantity": "1", "unitPrice": "100", "taxRate": "18", "discountRate": "10"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[map[string]any](t, env.Data)
	totals := preview["totals"].(map[string]any)
	assert.True(t, dec(t, totals["amountTtc"]).Equal(decimal.RequireFromString("106.2")))

	_, env = s.do(http.MethodGet, "/api/v1/invoices", nil)
	list := decode[map[string]any](t, env.Data)
	assert.EqualValues(t, 0, list["totalCount"])
}

func TestCancelAndReverse(t *testing.T) {
	s := newServer(t)
	number := s.createInvoice(oneLine)
	s.do(http.MethodPost, "/api/v1/invoices/"+number+"/validate", nil)

	w, _ := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/reverse", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/cancel", map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[map[string]any](t, env.Data)["status"])

	w, _ = s.do(http.MethodPost, "/api/v1/invoices/"+number+"/reverse", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(http.MethodGet, "/api/v1/journal/verify", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[map[string]any](t, env.Data)
	assert.EqualValues(t, 2, report["batches"])
}

func TestRatesAndConvert(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(http.MethodPut, "/api/v1/rates", map[string]any{
		"source": "eur", "target": "XOF", "rate": "655.957", "effectiveDate": "2024-01-01",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(http.MethodGet, "/api/v1/rates/convert?amount=10&from=XOF&to=EUR&date=2024-03-15", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv := decode[map[string]any](t, env.Data)
	assert.Equal(t, "0.02", conv["converted"])
	assert.Equal(t, true, conv["quote"].(map[string]any)["inverted"])

	w, env = s.do(http.MethodGet, "/api/v1/rates/convert?amount=10&from=USD&to=EUR&date=2024-03-15", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, apperror.CodeConfiguration, env.Errors[0].Code)
}

func TestAuthAndRoles(t *testing.T) {
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret", "tradeledger"))
	s := newServer(t, func(c *RouterConfig) { c.JWTValidator = jwtSvc })

	w, env := s.do(http.MethodGet, "/api/v1/invoices", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, env.Errors[0].Code)

	token, _, err := jwtSvc.GenerateAccessToken("u-1", "Awa", []string{auth.RoleAccountant}, 0)
	require.NoError(t, err)
	s.token = token

	number := s.createInvoice(oneLine)
	_, env = s.do(http.MethodGet, "/api/v1/invoices/"+number, nil)
	assert.Equal(t, "u-1", decode[map[string]any](t, env.Data)["createdBy"])

	w, env = s.do(http.MethodPut, "/api/v1/accounts", map[string]any{"category": "bank", "code": "5121"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, env.Errors[0].Code)

	w, _ = s.do(http.MethodGet, "/health/live", nil, "Authorization", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakeIdempotency struct {
	mu     sync.Mutex
	stored map[string]*postgres.IdempotencyReplay
	hashes map[string]string
}

func (f *fakeIdempotency) AcquireKey(_ context.Context, key, _, _, hash string) (*postgres.IdempotencyReplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.hashes[key]; ok && h != hash {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	f.hashes[key] = hash
	return f.stored[key], nil
}

func (f *fakeIdempotency) CompleteKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: body}
	return nil
}

func TestIdempotentPaymentRetry(t *testing.T) {
	store := &fakeIdempotency{stored: map[string]*postgres.IdempotencyReplay{}, hashes: map[string]string{}}
	s := newServer(t, func(c *RouterConfig) { c.Idempotency = store })
	number := s.createInvoice(oneLine)
	s.do(http.MethodPost, "/api/v1/invoices/"+number+"/validate", nil)

	body := map[string]any{"amount": "50", "mode": "cheque", "reference": "CHQ-9"}
	first, _ := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/payments", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second, _ := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/payments", body, middleware.HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))

	_, env := s.do(http.MethodGet, "/api/v1/invoices/"+number+"/payments", nil)
	assert.Len(t, decode[[]any](t, env.Data), 1)

	w, _ := s.do(http.MethodPost, "/api/v1/invoices/"+number+"/payments",
		map[string]any{"amount": "60", "mode": "cheque"}, middleware.HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthAndPanics(t *testing.T) {
	s := newServer(t)
	s.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w, _ := s.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, apperror.CodeInternal, env.Errors[0].Code)
	assert.NotEmpty(t, env.Errors[0].Details["request_id"])
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}
