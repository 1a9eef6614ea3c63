// Package fiscaltest содержит эмулятор фискального принтера для тестов.
package fiscaltest

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/encoding/charmap"

	"posprint/pkg/fiscal"
)

// Device эмулирует принтер, доступный по TCP на 127.0.0.1.
// Открытые чеки переживают разрыв соединения, как на настоящем устройстве.
type Device struct {
	listener net.Listener

	mu            sync.Mutex
	fiscalOpen    bool
	nonFiscalOpen bool
	extra         fiscal.Flags
	failOn        map[string]string
	stalled       bool
	commands      []string
	conns         map[net.Conn]struct{}
	accepted      int
	done          chan struct{}
	closeOnce     sync.Once
}

// NewDevice запускает эмулятор на свободном порту.
func NewDevice() (*Device, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	d := &Device{
		listener: l,
		failOn:   make(map[string]string),
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}
	go d.acceptLoop()
	return d, nil
}

// Host адрес, на котором слушает эмулятор.
func (d *Device) Host() string {
	return d.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port порт эмулятора.
func (d *Device) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// Close останавливает эмулятор и рвёт все соединения.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.listener.Close()
		d.mu.Lock()
		for c := range d.conns {
			c.Close()
		}
		d.mu.Unlock()
	})
	return err
}

// SetFlags задаёт постоянные флаги состояния (например, мало бумаги).
func (d *Device) SetFlags(f fiscal.Flags) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extra = f
}

// OpenFiscal имитирует фискальный чек, оставшийся открытым после сбоя питания.
func (d *Device) OpenFiscal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fiscalOpen = true
}

// OpenNonFiscal имитирует незакрытый нефискальный документ.
func (d *Device) OpenNonFiscal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nonFiscalOpen = true
}

// FailOn заставляет устройство отвечать ERROR с кодом code на команды с префиксом prefix.
func (d *Device) FailOn(prefix, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOn[prefix] = code
}

// Stall перестаёт отвечать на команды (соединение остаётся открытым).
func (d *Device) Stall(stalled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalled = stalled
}

// Commands возвращает все принятые команды в UTF-8.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

// Accepted количество принятых соединений.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// OpenConnections количество ещё не закрытых соединений.
func (d *Device) OpenConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *Device) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns[conn] = struct{}{}
		d.accepted++
		d.mu.Unlock()
		go d.serve(conn)
	}
}

func (d *Device) serve(conn net.Conn) {
	defer func() {
		conn.Close()
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
	}()

	for {
		payload, err := fiscal.ReadFrame(conn)
		if err != nil {
			return
		}
		raw, err := charmap.Windows1251.NewDecoder().Bytes(payload)
		if err != nil {
			return
		}

		answer, ok := d.handle(string(raw))
		if !ok {
			// Молчим, пока клиент не закроет соединение.
			select {
			case <-d.done:
			case <-waitClosed(conn):
			}
			return
		}

		enc, err := charmap.Windows1251.NewEncoder().String(answer)
		if err != nil {
			return
		}
		frame, err := fiscal.EncodeFrame([]byte(enc))
		if err != nil {
			return
		}
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func waitClosed(conn net.Conn) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (d *Device) handle(cmd string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = append(d.commands, cmd)
	if d.stalled {
		return "", false
	}

	for prefix, code := range d.failOn {
		if strings.HasPrefix(cmd, prefix) {
			return d.errorLocked(code), true
		}
	}

	switch {
	case strings.HasPrefix(cmd, "<GET STATUS"):
	case strings.HasPrefix(cmd, "<Do CHECK='OPEN'"):
		if d.fiscalOpen || d.nonFiscalOpen {
			return d.errorLocked("101"), true
		}
		d.fiscalOpen = true
	case strings.HasPrefix(cmd, "<Do CHECK='CLOSE'"):
		if !d.fiscalOpen {
			return d.errorLocked("102"), true
		}
		d.fiscalOpen = false
	case strings.HasPrefix(cmd, "<Do CHECK="), strings.HasPrefix(cmd, "<ADD "):
		if !d.fiscalOpen {
			return d.errorLocked("102"), true
		}
	case strings.HasPrefix(cmd, "<Do DOC='OPEN'"):
		if d.fiscalOpen || d.nonFiscalOpen {
			return d.errorLocked("101"), true
		}
		d.nonFiscalOpen = true
	case strings.HasPrefix(cmd, "<Do DOC='CLOSE'"):
		if !d.nonFiscalOpen {
			return d.errorLocked("102"), true
		}
		d.nonFiscalOpen = false
	case strings.HasPrefix(cmd, "<TEXT>"):
		if !d.fiscalOpen && !d.nonFiscalOpen {
			return d.errorLocked("102"), true
		}
	default:
		return "<ERROR No='1' STS='" + hex(d.flagsLocked()|fiscal.FlagInvalidCommand) + "'/>", true
	}

	return "<OK STS='" + hex(d.flagsLocked()) + "'/>", true
}

func (d *Device) errorLocked(code string) string {
	return "<ERROR No='" + code + "' STS='" + hex(d.flagsLocked()) + "'/>"
}

func (d *Device) flagsLocked() fiscal.Flags {
	f := d.extra
	if d.fiscalOpen {
		f |= fiscal.FlagFiscalReceiptOpen
	}
	if d.nonFiscalOpen {
		f |= fiscal.FlagNonFiscalReceiptOpen
	}
	return f
}

func hex(f fiscal.Flags) string {
	s := strconv.FormatUint(uint64(f), 16)
	return strings.ToUpper(strings.Repeat("0", 8-len(s)) + s)
}
