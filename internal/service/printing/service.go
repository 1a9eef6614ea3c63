// Package printing обрабатывает запросы кассы на печать и закрытие незавершённых чеков.
package printing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/infrastructure/metrics"
	"posprint/internal/service/session"
)

// DefaultTimeout предел на одну операцию, если не задан.
const DefaultTimeout = 30 * time.Second

// PrintKind вид документа.
type PrintKind int

const (
	Fiscal PrintKind = iota
	NonFiscal
)

// KindOf переводит флаг fiscal из запроса кассы в PrintKind.
func KindOf(fiscal bool) PrintKind {
	if fiscal {
		return Fiscal
	}
	return NonFiscal
}

func (k PrintKind) String() string {
	switch k {
	case Fiscal:
		return "fiscal"
	case NonFiscal:
		return "non_fiscal"
	default:
		return "unknown"
	}
}

// PrintRequest запрос на печать чека.
type PrintRequest struct {
	Address    string // Адрес кассы, по нему выбирается принтер
	Kind       PrintKind
	OperatorID string
	Receipt    models.ReceiptFields
}

// Service оркестратор печати.
type Service struct {
	gateway *session.Gateway
	logger  ports.Logger
	metrics *metrics.Recorder
	timeout time.Duration
}

// NewService создает новый экземпляр Service. timeout ограничивает операцию целиком,
// включая ожидание и открытие сеанса.
func NewService(gateway *session.Gateway, logger ports.Logger, m *metrics.Recorder, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		gateway: gateway,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
}

// Print проверяет чек, печатает его на принтере кассы и классифицирует ответ устройства.
// Некорректный чек отклоняется до обращения к устройству. Повторов при таймауте нет.
func (s *Service) Print(ctx context.Context, req PrintRequest) (*models.PrintOutcome, error) {
	const op = "print"
	start := time.Now()
	log := s.logger.With("address", req.Address)

	receipt, err := models.NewReceipt(req.Receipt)
	if err != nil {
		s.observeError(op, err)
		log.Warn("чек отклонён: %v", err)
		return nil, err
	}

	if req.Kind != Fiscal && req.Kind != NonFiscal {
		err := &models.ValidationError{Field: "fiscal", Reason: fmt.Sprintf("неизвестный вид документа %d", req.Kind)}
		s.observeError(op, err)
		return nil, err
	}

	warnings, err := s.run(ctx, req.Address, func(ctx context.Context, p ports.Printer) (models.WarningSet, error) {
		if req.Kind == Fiscal {
			return p.PrintFiscalReceipt(ctx, receipt)
		}
		return p.PrintReceipt(ctx, receipt)
	})
	s.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		s.observeError(op, err)
		log.Error("печать %s не выполнена (оператор %s): %v", req.Kind, req.OperatorID, err)
		return nil, err
	}

	outcome := models.NewPrintOutcome(warnings)
	s.metrics.ObservePrint(req.Kind.String(), outcome.Disposition.String())

	switch outcome.Disposition {
	case models.Success:
		log.Info("чек %q напечатан (%s, оператор %s)", receipt.ID(), req.Kind, req.OperatorID)
	case models.OpenReceiptWarning:
		log.Warn("принтер сообщил о незакрытом чеке: %v", outcome.Warnings)
	default:
		log.Error("принтер отклонил чек %q: %v", receipt.ID(), outcome.Warnings)
	}
	return &outcome, nil
}

// CloseOpenReceipts закрывает фискальный и нефискальный чеки, оставшиеся открытыми.
// Если открытых чеков нет, завершается успешно.
func (s *Service) CloseOpenReceipts(ctx context.Context, address string) error {
	const op = "close"
	start := time.Now()
	log := s.logger.With("address", address)

	_, err := s.run(ctx, address, func(ctx context.Context, p ports.Printer) (models.WarningSet, error) {
		return nil, p.CloseOpenReceipts(ctx)
	})
	s.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		s.observeError(op, err)
		log.Error("не удалось закрыть чеки: %v", err)
		return err
	}
	log.Info("незакрытые чеки закрыты")
	return nil
}

type result struct {
	warnings models.WarningSet
	err      error
}

// run выполняет операцию в сеансе с пределом s.timeout. По истечении предела операция
// бросается, сеанс освобождается, возвращается ErrTimedOut.
func (s *Service) run(ctx context.Context, address string, fn func(context.Context, ports.Printer) (models.WarningSet, error)) (models.WarningSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var warnings models.WarningSet
	err := s.gateway.WithSession(ctx, address, func(sess *session.Session) error {
		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: fmt.Errorf("сбой драйвера принтера: %v", r)}
				}
			}()
			w, err := fn(ctx, sess.Printer())
			done <- result{warnings: w, err: err}
		}()

		select {
		case res := <-done:
			warnings = res.warnings
			return res.err
		case <-ctx.Done():
			return timeoutError(ctx.Err(), address)
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !isTaxonomy(err) {
			return nil, timeoutError(ctxErr, address)
		}
		return nil, err
	}
	return warnings, nil
}

func timeoutError(err error, address string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: принтер %s", models.ErrTimedOut, address)
	}
	return err
}

func isTaxonomy(err error) bool {
	return errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrDeviceNotFound) ||
		errors.Is(err, models.ErrConnectFailed) ||
		errors.Is(err, models.ErrTimedOut) ||
		errors.Is(err, models.ErrDeviceWarning)
}

// Reason короткое имя вида ошибки для метрик и ответов.
func Reason(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, models.ErrConnectFailed):
		return "connect_failed"
	case errors.Is(err, models.ErrTimedOut):
		return "timed_out"
	case errors.Is(err, models.ErrDeviceWarning):
		return "device_warning"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

func (s *Service) observeError(op string, err error) {
	s.metrics.ObserveError(op, Reason(err))
}
