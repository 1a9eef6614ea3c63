package driver

import (
	"context"
	"errors"
	"time"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/pkg/fiscal"
)

// Dialer открывает соединения с принтерами через pkg/fiscal.
type Dialer struct {
	timeout   time.Duration
	logger    ports.Logger
	newClient func(fiscal.Config) fiscal.Client
}

// NewDialer создает Dialer. timeout ограничивает один обмен с устройством.
func NewDialer(timeout time.Duration, logger ports.Logger) *Dialer {
	return &Dialer{
		timeout:   timeout,
		logger:    logger,
		newClient: fiscal.NewClient,
	}
}

// Dial подключается к принтеру из профиля.
func (d *Dialer) Dial(ctx context.Context, profile models.DeviceProfile) (ports.Printer, error) {
	cfg, err := ConvertProfileToConfig(profile, int(d.timeout/time.Millisecond))
	if err != nil {
		return nil, err
	}
	if d.logger != nil {
		log := d.logger.With("address", profile.Address)
		cfg.Logger = func(msg string) { log.Debug("%s", msg) }
	}

	client := d.newClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return nil, translateError(err)
	}
	return &PrinterAdapter{client: client}, nil
}

// PrinterAdapter адаптирует fiscal.Client к интерфейсу ports.Printer.
type PrinterAdapter struct {
	client fiscal.Client
}

// PrintFiscalReceipt печатает фискальный чек.
func (a *PrinterAdapter) PrintFiscalReceipt(ctx context.Context, receipt models.Receipt) (models.WarningSet, error) {
	flags, err := a.client.PrintFiscalReceipt(ctx, ConvertDomainToProtocolReceipt(receipt))
	return warningsOrError(flags, err)
}

// PrintReceipt печатает нефискальный чек.
func (a *PrinterAdapter) PrintReceipt(ctx context.Context, receipt models.Receipt) (models.WarningSet, error) {
	flags, err := a.client.PrintNonFiscalReceipt(ctx, ConvertDomainToProtocolReceipt(receipt))
	return warningsOrError(flags, err)
}

// Status читает текущее состояние устройства.
func (a *PrinterAdapter) Status(ctx context.Context) (models.WarningSet, error) {
	flags, err := a.client.GetStatus(ctx)
	return warningsOrError(flags, err)
}

// CloseOpenReceipts закрывает незавершённые документы.
// Отказ устройства здесь ошибка: закрыть чек не удалось.
func (a *PrinterAdapter) CloseOpenReceipts(ctx context.Context) error {
	_, err := a.client.CloseOpenReceipts(ctx)
	var devErr *fiscal.DeviceError
	if errors.As(err, &devErr) {
		return &models.DeviceWarningError{Warnings: ConvertDeviceErrorToWarnings(devErr)}
	}
	return translateError(err)
}

// Close разрывает соединение.
func (a *PrinterAdapter) Close() error {
	return a.client.Disconnect()
}

// warningsOrError: отказ устройства (ERROR) превращается в набор кодов,
// ошибкой остаются только сбои связи.
func warningsOrError(flags fiscal.Flags, err error) (models.WarningSet, error) {
	if err == nil {
		return ConvertFlagsToWarnings(flags), nil
	}
	var devErr *fiscal.DeviceError
	if errors.As(err, &devErr) {
		return ConvertDeviceErrorToWarnings(devErr), nil
	}
	return nil, translateError(err)
}
