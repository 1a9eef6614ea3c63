package ports

import "posprint/internal/domain/models"

// DeviceRegistry хранит соответствие сетевого адреса кассы и принтера.
// Реализация интерфейса находится в слое Infrastructure.
type DeviceRegistry interface {
	// FindDevice возвращает профиль по адресу или nil, если адрес не зарегистрирован
	FindDevice(address string) (*models.DeviceProfile, error)

	// LoadDevices загружает все профили из хранилища
	LoadDevices() ([]*models.DeviceProfile, error)

	// UpsertDevice добавляет или обновляет профиль
	UpsertDevice(profile *models.DeviceProfile) error

	// DeleteDevice удаляет профиль по адресу
	DeleteDevice(address string) error
}
