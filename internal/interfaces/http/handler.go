// Package http HTTP интерфейс шлюза печати для кассовых клиентов.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/service/monitor"
	"posprint/internal/service/printing"
)

// StatusDeviceUnreachable код ответа, который кассовые клиенты понимают как "принтер недоступен".
const StatusDeviceUnreachable = 480

const maxBodyBytes = 1 << 20

// RequestIDHeader заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

// ReceiptPrinter операции печати, которые нужны обработчику.
type ReceiptPrinter interface {
	Print(ctx context.Context, req printing.PrintRequest) (*models.PrintOutcome, error)
	CloseOpenReceipts(ctx context.Context, address string) error
}

// StatusReader чтение состояния принтера.
type StatusReader interface {
	Status(ctx context.Context, address string) (models.WarningSet, error)
}

// StateLister последние результаты фонового опроса принтеров.
type StateLister interface {
	States() []monitor.DeviceState
}

// Handler обрабатывает /v1/receipts/req/print и /v1/printers/status.
type Handler struct {
	printer ReceiptPrinter
	status  StatusReader
	states  StateLister
	logger  ports.Logger
}

// NewHandler создает обработчик.
func NewHandler(printer ReceiptPrinter, status StatusReader, logger ports.Logger) (*Handler, error) {
	if printer == nil {
		return nil, errors.New("print handler: nil printer service")
	}
	if logger == nil {
		return nil, errors.New("print handler: nil logger")
	}
	return &Handler{printer: printer, status: status, logger: logger}, nil
}

// WithStates подключает список /v1/printers.
func (h *Handler) WithStates(states StateLister) *Handler {
	h.states = states
	return h
}

// NewRouter собирает все маршруты сервера.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/receipts/req/print", h)
	mux.HandleFunc("/v1/printers/status", h.handleStatus)
	mux.HandleFunc("/v1/printers", h.handleStates)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ServeHTTP handles POST/DELETE /v1/receipts/req/print.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePrint(w, r)
	case http.MethodDelete:
		h.handleClose(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	log := h.logger.With("request_id", id)

	var dto PrintReceiptRequestDTO
	if err := decode(w, r, &dto); err != nil {
		respondError(w, id, err)
		return
	}
	log = log.With("address", dto.SourceIP)
	log.Info("печать: fiscal=%t, позиций %d", dto.Fiscal, len(dto.Receipt.ReceiptItems))

	outcome, err := h.printer.Print(r.Context(), dto.ToRequest())
	if err != nil {
		log.Warn("печать не выполнена: %v", err)
		respondError(w, id, err)
		return
	}

	code := http.StatusOK
	if !outcome.Accepted() {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, PrintReceiptResponseDTO{Warnings: outcome.Warnings, Disposition: outcome.Disposition})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	var dto CloseReceiptDTO
	if err := decode(w, r, &dto); err != nil {
		respondError(w, id, err)
		return
	}
	log := h.logger.With("request_id", id).With("address", dto.SourceIP)
	log.Info("закрытие незавершённых чеков")

	if err := h.printer.CloseOpenReceipts(r.Context(), dto.SourceIP); err != nil {
		log.Warn("закрытие не выполнено: %v", err)
		respondError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.status == nil {
		http.Error(w, "status is not available", http.StatusNotImplemented)
		return
	}

	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		respondError(w, id, &models.ValidationError{Field: "address", Reason: "обязательный параметр"})
		return
	}

	warnings, err := h.status.Status(r.Context(), address)
	if err != nil {
		h.logger.With("request_id", id).Warn("состояние %s не получено: %v", address, err)
		respondError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponseDTO{
		Address:     address,
		Warnings:    warnings,
		Disposition: models.Classify(warnings),
	})
}

func (h *Handler) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID(w, r)
	if h.states == nil {
		http.Error(w, "monitor is disabled", http.StatusNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, h.states.States())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &models.ValidationError{Field: "body", Reason: fmt.Sprintf("некорректный JSON: %v", err)}
	}
	return nil
}

func requestID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return id
}

// StatusCode код ответа для ошибки из таксономии.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConnectFailed):
		return StatusDeviceUnreachable
	case errors.Is(err, models.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrDeviceWarning):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, id string, err error) {
	code := StatusCode(err)
	var msg string
	switch code {
	case http.StatusNotFound:
		msg = "Device not found."
	case StatusDeviceUnreachable:
		msg = "Device can't connect."
	case http.StatusGatewayTimeout:
		msg = "Printer request timeout.\n" + err.Error()
	default:
		msg = err.Error()
	}
	writeJSON(w, code, ErrorResponse{Message: msg, Reason: printing.Reason(err), RequestID: id})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
