package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/domain/models"
	"posprint/internal/infrastructure/logger"
	"posprint/internal/infrastructure/metrics"
	"posprint/internal/service/monitor"
	"posprint/internal/service/printing"
)

type fakePrinter struct {
	onPrint func(printing.PrintRequest) (*models.PrintOutcome, error)
	onClose func(string) error
}

func (f *fakePrinter) Print(_ context.Context, req printing.PrintRequest) (*models.PrintOutcome, error) {
	return f.onPrint(req)
}

func (f *fakePrinter) CloseOpenReceipts(_ context.Context, address string) error {
	return f.onClose(address)
}

type fakeStatus func(string) (models.WarningSet, error)

func (f fakeStatus) Status(_ context.Context, address string) (models.WarningSet, error) {
	return f(address)
}

func newRouter(t *testing.T, p *fakePrinter, s StatusReader) http.Handler {
	t.Helper()
	h, err := NewHandler(p, s, logger.NewNop())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObservePrint("fiscal", "SUCCESS")
	return NewRouter(h, reg)
}

func outcomeOf(codes ...models.Status) (*models.PrintOutcome, error) {
	o := models.NewPrintOutcome(models.NewWarningSet(codes...))
	return &o, nil
}

const breadBody = `{"sourceIp":"10.0.0.5","operatorId":"7","fiscal":true,
 "receipt":{"receiptId":"R-1","receiptItems":[{"name":"Bread","quantity":2,"price":1.50,"vat":20,"department":"0"}]}}`

func TestPrintRequestMapping(t *testing.T) {
	var got printing.PrintRequest
	router := newRouter(t, &fakePrinter{onPrint: func(req printing.PrintRequest) (*models.PrintOutcome, error) {
		got = req
		return outcomeOf()
	}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/receipts/req/print", strings.NewReader(breadBody)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"warnings":[],"disposition":"SUCCESS"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	assert.Equal(t, "10.0.0.5", got.Address)
	assert.Equal(t, printing.Fiscal, got.Kind)
	assert.Equal(t, "7", got.OperatorID)
	assert.Equal(t, "R-1", got.Receipt.ReceiptID)
	require.Len(t, got.Receipt.Items, 1)
	assert.True(t, got.Receipt.Items[0].Quantity.Valid)
	assert.True(t, got.Receipt.Items[0].Quantity.Decimal.Equal(decimal.NewFromInt(2)))
	assert.True(t, got.Receipt.Items[0].Price.Equal(decimal.RequireFromString("1.5")))
}

func TestPrintDefaults(t *testing.T) {
	var got printing.PrintRequest
	router := newRouter(t, &fakePrinter{onPrint: func(req printing.PrintRequest) (*models.PrintOutcome, error) {
		got = req
		return outcomeOf()
	}}, nil)

	body := `{"sourceIp":"10.0.0.5","receipt":{"receiptItems":[{"name":"Tea","price":"2.10"}]}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/receipts/req/print", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, printing.NonFiscal, got.Kind)
	assert.False(t, got.Receipt.Items[0].Quantity.Valid, "missing quantity is left for the model to default")

	receipt, err := models.NewReceipt(got.Receipt)
	require.NoError(t, err)
	assert.Equal(t, "BGN", receipt.Currency())
	assert.True(t, receipt.Items()[0].Quantity().Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "0", receipt.Items()[0].Department())
}

func TestPrintStatusCodes(t *testing.T) {
	cases := []struct {
		name    string
		outcome func() (*models.PrintOutcome, error)
		code    int
		reason  string
	}{
		{"open receipt", func() (*models.PrintOutcome, error) { return outcomeOf(models.StatusFiscalReceiptIsOpen) }, http.StatusOK, ""},
		{"device rejection", func() (*models.PrintOutcome, error) { return outcomeOf(models.StatusEndOfPaper) }, http.StatusUnprocessableEntity, ""},
		{"validation", func() (*models.PrintOutcome, error) {
			return nil, &models.ValidationError{Field: "items[0].name", Reason: "empty"}
		}, http.StatusBadRequest, "validation"},
		{"not found", func() (*models.PrintOutcome, error) { return nil, models.ErrDeviceNotFound }, http.StatusNotFound, "device_not_found"},
		{"unreachable", func() (*models.PrintOutcome, error) { return nil, models.ErrConnectFailed }, StatusDeviceUnreachable, "connect_failed"},
		{"timeout", func() (*models.PrintOutcome, error) { return nil, models.ErrTimedOut }, http.StatusGatewayTimeout, "timed_out"},
		{"internal", func() (*models.PrintOutcome, error) { return nil, errors.New("boom") }, http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(t, &fakePrinter{onPrint: func(printing.PrintRequest) (*models.PrintOutcome, error) {
				return tc.outcome()
			}}, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/receipts/req/print", strings.NewReader(breadBody)))
			assert.Equal(t, tc.code, rec.Code)

			if tc.reason != "" {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tc.reason, resp.Reason)
				assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
			}
		})
	}
}

func TestFailureCarriesWarnings(t *testing.T) {
	router := newRouter(t, &fakePrinter{onPrint: func(printing.PrintRequest) (*models.PrintOutcome, error) {
		return outcomeOf(models.StatusCoverIsOpen, models.StatusEndOfPaper)
	}}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/receipts/req/print", strings.NewReader(breadBody)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"warnings":["COVER_IS_OPEN","END_OF_PAPER"],"disposition":"FAILURE"}`, rec.Body.String())
}

func TestBadJSON(t *testing.T) {
	called := false
	router := newRouter(t, &fakePrinter{onPrint: func(printing.PrintRequest) (*models.PrintOutcome, error) {
		called = true
		return outcomeOf()
	}}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/receipts/req/print", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newRouter(t, &fakePrinter{onPrint: func(printing.PrintRequest) (*models.PrintOutcome, error) {
		return outcomeOf()
	}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts/req/print", strings.NewReader(breadBody))
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestCloseReceipts(t *testing.T) {
	var closed []string
	router := newRouter(t, &fakePrinter{onClose: func(address string) error {
		closed = append(closed, address)
		if address == "0.0.0.0" {
			return models.ErrDeviceNotFound
		}
		return nil
	}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/receipts/req/print", strings.NewReader(`{"sourceIp":"91.92.249.20"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/receipts/req/print", strings.NewReader(`{"sourceIp":"0.0.0.0"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"91.92.249.20", "0.0.0.0"}, closed)
}

func TestMethodNotAllowed(t *testing.T) {
	router := newRouter(t, &fakePrinter{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/receipts/req/print", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPrinterStatus(t *testing.T) {
	router := newRouter(t, &fakePrinter{}, fakeStatus(func(address string) (models.WarningSet, error) {
		if address != "10.0.0.5" {
			return nil, models.ErrDeviceNotFound
		}
		return models.NewWarningSet(models.StatusNonFiscalReceiptIsOpen), nil
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/printers/status?address=10.0.0.5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"10.0.0.5","warnings":["NON_FISCAL_RECEIPT_IS_OPEN"],"disposition":"OPEN_RECEIPT_WARNING"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/printers/status?address=1.1.1.1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/printers/status", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newRouter(t, &fakePrinter{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `posprint_print_total{disposition="SUCCESS",kind="fiscal"} 1`)
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	_, err := NewHandler(nil, nil, logger.NewNop())
	assert.Error(t, err)
	_, err = NewHandler(&fakePrinter{}, nil, nil)
	assert.Error(t, err)
}

type fakeStates []monitor.DeviceState

func (f fakeStates) States() []monitor.DeviceState { return f }

func TestPrinterStates(t *testing.T) {
	router := newRouter(t, &fakePrinter{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/printers", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	h, err := NewHandler(&fakePrinter{}, nil, logger.NewNop())
	require.NoError(t, err)
	router = NewRouter(h.WithStates(fakeStates{{
		Address:     "10.0.0.5",
		Reachable:   true,
		Warnings:    models.NewWarningSet(models.StatusNearPaperEnd),
		Disposition: models.Success,
	}}), nil)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/printers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.5", got[0]["address"])
	assert.Equal(t, true, got[0]["reachable"])
	assert.Equal(t, []any{"NEAR_PAPER_END"}, got[0]["warnings"])
	assert.Equal(t, "SUCCESS", got[0]["disposition"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/printers", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
