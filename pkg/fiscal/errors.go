package fiscal

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionFailed = errors.New("fiscal: connection to device failed")
	ErrTimeout          = errors.New("fiscal: timeout waiting for device")
	ErrNotConnected     = errors.New("fiscal: device is not connected")
	ErrInvalidResponse  = errors.New("fiscal: invalid response from device")
	// ErrCommandTooLong команда не помещается в один кадр; на устройство ничего не отправлено.
	ErrCommandTooLong = errors.New("fiscal: command too long")
)

// DeviceError логическая ошибка, которую вернуло устройство (ответ ERROR).
// Связь при этом исправна.
type DeviceError struct {
	Code  string
	Flags Flags
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("fiscal: device error %s (STS=%08X)", e.Code, uint32(e.Flags))
}
