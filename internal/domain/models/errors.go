package models

import (
	"errors"
	"fmt"
	"strings"
)

// Таксономия ошибок шлюза печати. Сравнивать через errors.Is.
var (
	ErrValidation     = errors.New("posprint: некорректные данные чека")
	ErrDeviceNotFound = errors.New("posprint: устройство не найдено")
	ErrConnectFailed  = errors.New("posprint: нет связи с устройством")
	ErrTimedOut       = errors.New("posprint: устройство не ответило вовремя")
	ErrDeviceWarning  = errors.New("posprint: устройство сообщило об ошибке")
)

// ValidationError описывает некорректное поле чека. До устройства такой запрос не доходит.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DeviceWarningError несёт набор кодов, из-за которых операция классифицирована как Failure.
type DeviceWarningError struct {
	Warnings WarningSet
}

func (e *DeviceWarningError) Error() string {
	codes := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		codes = append(codes, string(w))
	}
	return fmt.Sprintf("%v: %s", ErrDeviceWarning, strings.Join(codes, ","))
}

func (e *DeviceWarningError) Unwrap() error {
	return ErrDeviceWarning
}
