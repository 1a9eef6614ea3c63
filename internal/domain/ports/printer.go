package ports

import (
	"context"

	"posprint/internal/domain/models"
)

// Printer сеанс работы с одним фискальным принтером.
// Логические ошибки устройства возвращаются набором кодов, а не ошибкой:
// ошибка означает только сбой связи или таймаут.
type Printer interface {
	// PrintFiscalReceipt печатает фискальный чек (запись в налоговую память).
	PrintFiscalReceipt(ctx context.Context, receipt models.Receipt) (models.WarningSet, error)

	// PrintReceipt печатает нефискальный (информационный) чек.
	PrintReceipt(ctx context.Context, receipt models.Receipt) (models.WarningSet, error)

	// CloseOpenReceipts закрывает незавершённые фискальный и нефискальный чеки.
	// Если открытых чеков нет, ничего не делает.
	CloseOpenReceipts(ctx context.Context) error

	// Status читает текущие коды состояния устройства.
	Status(ctx context.Context) (models.WarningSet, error)

	// Close разрывает соединение с устройством.
	Close() error
}

// PrinterDialer открывает соединение с принтером по его профилю.
type PrinterDialer interface {
	Dial(ctx context.Context, profile models.DeviceProfile) (Printer, error)
}
