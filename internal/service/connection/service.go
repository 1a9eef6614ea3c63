package connection

import (
	"context"
	"sort"
	"time"

	"go.bug.st/serial"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/service/session"
)

// ConnectionService отвечает за опрос принтеров и управление реестром устройств
type ConnectionService struct {
	gateway   *session.Gateway
	registry  ports.DeviceRegistry
	timeout   time.Duration
	listPorts func() ([]string, error)
}

// NewConnectionService создает новый экземпляр ConnectionService
func NewConnectionService(gateway *session.Gateway, registry ports.DeviceRegistry, timeout time.Duration) *ConnectionService {
	return &ConnectionService{
		gateway:   gateway,
		registry:  registry,
		timeout:   timeout,
		listPorts: serial.GetPortsList,
	}
}

// GetSystemPorts возвращает список доступных в системе COM-портов
func (s *ConnectionService) GetSystemPorts() ([]string, error) {
	portsList, err := s.listPorts()
	if err != nil {
		return nil, err
	}
	sort.Strings(portsList)
	return portsList, nil
}

// Status читает текущие коды состояния принтера кассы в отдельном сеансе
func (s *ConnectionService) Status(ctx context.Context, address string) (models.WarningSet, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var warnings models.WarningSet
	err := s.gateway.WithSession(ctx, address, func(sess *session.Session) error {
		w, err := sess.Printer().Status(ctx)
		if err != nil {
			return err
		}
		warnings = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// LoadDevices возвращает все зарегистрированные принтеры
func (s *ConnectionService) LoadDevices() ([]*models.DeviceProfile, error) {
	return s.registry.LoadDevices()
}

// SaveDevice сохраняет или обновляет привязку адреса к принтеру
func (s *ConnectionService) SaveDevice(profile *models.DeviceProfile) error {
	if profile.ConnectionType == "" {
		profile.ConnectionType = models.ConnectionTCP
	}
	switch profile.ConnectionType {
	case models.ConnectionTCP:
		if profile.TCPPort <= 0 || profile.TCPPort > 65535 {
			return &models.ValidationError{Field: "port", Reason: "должен быть в диапазоне 1-65535"}
		}
	case models.ConnectionCOM:
		if profile.ComName == "" {
			return &models.ValidationError{Field: "com_name", Reason: "обязательное поле для COM"}
		}
	default:
		return &models.ValidationError{Field: "connection", Reason: "допустимы tcp и com"}
	}
	return s.registry.UpsertDevice(profile)
}

// DeleteDevice удаляет привязку по адресу
func (s *ConnectionService) DeleteDevice(address string) error {
	return s.registry.DeleteDevice(address)
}
