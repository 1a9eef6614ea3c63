package fiscal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Типы подключения (значения совпадают с настройками драйвера ККТ).
const (
	ConnCOM int32 = 0
	ConnTCP int32 = 6
)

// Config определяет параметры для подключения к принтеру.
type Config struct {
	ConnectionType int32            `json:"connectionType"`      // 0 - COM, 6 - TCP
	IPAddress      string           `json:"ipAddress,omitempty"` // TCP IP
	TCPPort        int32            `json:"tcpPort,omitempty"`   // TCP Port
	ComName        string           `json:"comName,omitempty"`   // COM Port Name
	BaudRate       int32            `json:"baudRate,omitempty"`  // COM Speed
	Timeout        int              `json:"timeout,omitempty"`   // Timeout ms на один обмен
	Logger         func(msg string) `json:"-"`
}

// Transport держит одно соединение с устройством на время сеанса.
// Обмены сериализуются мьютексом, байты двух команд не перемешиваются.
type Transport struct {
	config Config
	mu     sync.Mutex
	link   io.ReadWriteCloser
}

// NewTransport создаёт новый транспортный слой с заданными конфигурациями
func NewTransport(config Config) *Transport {
	if config.Timeout == 0 {
		config.Timeout = 3000
	}
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}
	return &Transport{config: config}
}

func (t *Transport) timeout() time.Duration {
	return time.Duration(t.config.Timeout) * time.Millisecond
}

// Connect открывает соединение. Повторный вызов при открытом соединении ничего не делает.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.link != nil {
		return nil
	}

	switch t.config.ConnectionType {
	case ConnCOM:
		mode := &serial.Mode{
			BaudRate: int(t.config.BaudRate),
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(t.config.ComName, mode)
		if err != nil {
			return fmt.Errorf("%w: ошибка открытия COM-порта %s: %v", ErrConnectionFailed, t.config.ComName, err)
		}
		if err := port.SetReadTimeout(t.timeout()); err != nil {
			port.Close()
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		t.link = port

	case ConnTCP:
		addr := net.JoinHostPort(t.config.IPAddress, strconv.Itoa(int(t.config.TCPPort)))
		dialer := &net.Dialer{Timeout: t.timeout()}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		t.link = conn

	default:
		return fmt.Errorf("%w: неизвестный тип подключения: %d", ErrConnectionFailed, t.config.ConnectionType)
	}

	t.logf("connected (type %d)", t.config.ConnectionType)
	return nil
}

// Disconnect закрывает соединение. Безопасно вызывать повторно.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnectLocked()
}

func (t *Transport) disconnectLocked() error {
	if t.link == nil {
		return nil
	}
	err := t.link.Close()
	t.link = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Exchange отправляет команду и ждёт ответ. Ответ возвращается в UTF-8.
// Отмена контекста закрывает соединение, чтобы прервать блокирующее чтение.
// После любой ошибки связи соединение считается испорченным и закрывается.
func (t *Transport) Exchange(ctx context.Context, cmd string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.link == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	packet, err := EncodeFrame(encodeCP1251(cmd))
	if err != nil {
		return nil, err
	}

	link := t.link
	stop := context.AfterFunc(ctx, func() { link.Close() })
	defer stop()

	t.logf(">> TX: %s", cmd)

	resp, err := t.performExchange(ctx, link, packet)
	if err != nil {
		t.disconnectLocked()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, classifyIOError(err)
	}

	t.logf("<< RX: %s", resp)
	return resp, nil
}

func (t *Transport) performExchange(ctx context.Context, link io.ReadWriteCloser, packet []byte) ([]byte, error) {
	deadline := time.Now().Add(t.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	switch l := link.(type) {
	case net.Conn:
		if err := l.SetDeadline(deadline); err != nil {
			return nil, err
		}
	case serial.Port:
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, ErrTimeout
		}
		if err := l.SetReadTimeout(wait); err != nil {
			return nil, err
		}
	}

	if _, err := link.Write(packet); err != nil {
		return nil, err
	}

	payload, err := ReadFrame(link)
	if err != nil {
		return nil, err
	}
	return toUTF8(payload)
}

func (t *Transport) logf(format string, args ...any) {
	if t.config.Logger != nil {
		t.config.Logger(fmt.Sprintf(format, args...))
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func classifyIOError(err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrInvalidResponse) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}
