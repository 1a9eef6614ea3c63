package driver

import (
	"context"
	"errors"
	"fmt"

	"posprint/internal/domain/models"
	"posprint/pkg/fiscal"
)

// statusByFlag соответствие битов STS кодам состояния домена.
var statusByFlag = map[fiscal.Flags]models.Status{
	fiscal.FlagGeneralError:           models.StatusGeneralError,
	fiscal.FlagPrintingMechanismError: models.StatusPrintingMechanismError,
	fiscal.FlagClockNotSet:            models.StatusClockIsNotSet,
	fiscal.FlagCoverOpen:              models.StatusCoverIsOpen,
	fiscal.FlagEndOfPaper:             models.StatusEndOfPaper,
	fiscal.FlagNearPaperEnd:           models.StatusNearPaperEnd,
	fiscal.FlagFiscalReceiptOpen:      models.StatusFiscalReceiptIsOpen,
	fiscal.FlagNonFiscalReceiptOpen:   models.StatusNonFiscalReceiptIsOpen,
	fiscal.FlagFiscalMemoryFull:       models.StatusFiscalMemoryFull,
	fiscal.FlagFiscalMemoryStoreError: models.StatusFiscalMemoryStoreError,
	fiscal.FlagSyntaxError:            models.StatusSyntaxError,
	fiscal.FlagInvalidCommand:         models.StatusInvalidCommand,
	fiscal.FlagOverflow:               models.StatusOverflow,
}

// ConvertFlagsToWarnings преобразует маску STS в набор кодов. Неизвестные биты отбрасываются.
func ConvertFlagsToWarnings(flags fiscal.Flags) models.WarningSet {
	codes := make([]models.Status, 0, len(statusByFlag))
	for _, bit := range flags.Bits() {
		if code, ok := statusByFlag[bit]; ok {
			codes = append(codes, code)
		}
	}
	return models.NewWarningSet(codes...)
}

// ConvertDeviceErrorToWarnings возвращает коды отказа устройства.
// Если отказ пришёл без флагов, он всё равно не может считаться успехом.
func ConvertDeviceErrorToWarnings(devErr *fiscal.DeviceError) models.WarningSet {
	warnings := ConvertFlagsToWarnings(devErr.Flags)
	if len(warnings) == 0 {
		return models.NewWarningSet(models.StatusGeneralError)
	}
	return warnings
}

// ConvertDomainToProtocolReceipt форматирует чек для отправки на устройство.
func ConvertDomainToProtocolReceipt(r models.Receipt) fiscal.Receipt {
	items := make([]fiscal.Item, 0, len(r.Items()))
	for _, it := range r.Items() {
		items = append(items, fiscal.Item{
			Name:       it.Name(),
			Quantity:   it.Quantity().StringFixed(3),
			Price:      it.Price().StringFixed(2),
			Vat:        it.Vat().StringFixed(2),
			Department: it.Department(),
		})
	}
	return fiscal.Receipt{
		Number:   r.ID(),
		Header:   r.PrefixLines(),
		Items:    items,
		Footer:   r.SuffixLines(),
		Currency: r.Currency(),
		Amount:   r.Amount().StringFixed(2),
	}
}

// ConvertProfileToConfig строит настройки подключения из профиля устройства.
func ConvertProfileToConfig(p models.DeviceProfile, timeoutMs int) (fiscal.Config, error) {
	cfg := fiscal.Config{Timeout: timeoutMs}
	switch p.ConnectionType {
	case models.ConnectionTCP, "":
		if p.TCPPort <= 0 {
			return cfg, fmt.Errorf("%w: не задан TCP порт для %s", models.ErrConnectFailed, p.Address)
		}
		cfg.ConnectionType = fiscal.ConnTCP
		cfg.IPAddress = p.DialHost()
		cfg.TCPPort = int32(p.TCPPort)
	case models.ConnectionCOM:
		if p.ComName == "" {
			return cfg, fmt.Errorf("%w: не задан COM порт для %s", models.ErrConnectFailed, p.Address)
		}
		cfg.ConnectionType = fiscal.ConnCOM
		cfg.ComName = p.ComName
		cfg.BaudRate = int32(p.BaudRate)
	default:
		return cfg, fmt.Errorf("%w: неизвестный тип подключения %q", models.ErrConnectFailed, p.ConnectionType)
	}
	return cfg, nil
}

// translateError переводит ошибки связи в таксономию домена.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fiscal.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", models.ErrTimedOut, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, fiscal.ErrCommandTooLong):
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", models.ErrConnectFailed, err)
	}
}
