package models

import "time"

// Типы подключения к принтеру.
const (
	ConnectionTCP = "tcp"
	ConnectionCOM = "com"
)

// DeviceProfile описывает принтер, закреплённый за сетевым адресом кассы.
type DeviceProfile struct {
	Address        string    `yaml:"address"`              // Адрес, по которому касса запрашивает печать
	ConnectionType string    `yaml:"connection"`           // tcp | com
	Host           string    `yaml:"host,omitempty"`       // TCP хост принтера, по умолчанию Address
	TCPPort        int       `yaml:"port,omitempty"`       // Например 4999
	ComName        string    `yaml:"com_name,omitempty"`   // Например "/dev/ttyUSB0" или "COM9"
	BaudRate       int       `yaml:"baud_rate,omitempty"`  // Например 115200
	Model          string    `yaml:"model,omitempty"`      // Модель принтера
	SerialNumber   string    `yaml:"serial,omitempty"`     // Заводской номер
	UpdatedAt      time.Time `yaml:"updated_at,omitempty"` // Время последнего изменения записи
}

// DialHost возвращает хост для TCP подключения.
func (p DeviceProfile) DialHost() string {
	if p.Host != "" {
		return p.Host
	}
	return p.Address
}
