package ports

// Logger определяет интерфейс для абстракции логирования.
// Сообщения форматируются в стиле Printf.
type Logger interface {
	// Debug выводит отладочную информацию
	Debug(msg string, args ...any)

	// Info выводит информационные сообщения
	Info(msg string, args ...any)

	// Warn выводит предупреждения
	Warn(msg string, args ...any)

	// Error выводит ошибки
	Error(msg string, args ...any)

	// Fatal выводит критические ошибки и завершает программу
	Fatal(msg string, args ...any)

	// With возвращает логгер с дополнительным атрибутом (например, адрес устройства)
	With(key string, value any) Logger
}
