// Package portstest содержит моки портов домена для тестов сервисов.
package portstest

import (
	"context"
	"sync"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
)

// MockPrinter мок принтера. Незаданные обработчики возвращают пустой набор кодов.
type MockPrinter struct {
	OnPrintFiscal func(ctx context.Context, r models.Receipt) (models.WarningSet, error)
	OnPrint       func(ctx context.Context, r models.Receipt) (models.WarningSet, error)
	OnCloseOpen   func(ctx context.Context) error
	OnStatus      func(ctx context.Context) (models.WarningSet, error)
	OnClose       func() error

	mu     sync.Mutex
	calls  []string
	closed int
}

func (m *MockPrinter) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls возвращает имена вызванных методов по порядку.
func (m *MockPrinter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Closed сколько раз вызывался Close.
func (m *MockPrinter) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockPrinter) PrintFiscalReceipt(ctx context.Context, r models.Receipt) (models.WarningSet, error) {
	m.record("PrintFiscalReceipt")
	if m.OnPrintFiscal != nil {
		return m.OnPrintFiscal(ctx, r)
	}
	return models.WarningSet{}, nil
}

func (m *MockPrinter) PrintReceipt(ctx context.Context, r models.Receipt) (models.WarningSet, error) {
	m.record("PrintReceipt")
	if m.OnPrint != nil {
		return m.OnPrint(ctx, r)
	}
	return models.WarningSet{}, nil
}

func (m *MockPrinter) CloseOpenReceipts(ctx context.Context) error {
	m.record("CloseOpenReceipts")
	if m.OnCloseOpen != nil {
		return m.OnCloseOpen(ctx)
	}
	return nil
}

func (m *MockPrinter) Status(ctx context.Context) (models.WarningSet, error) {
	m.record("Status")
	if m.OnStatus != nil {
		return m.OnStatus(ctx)
	}
	return models.WarningSet{}, nil
}

func (m *MockPrinter) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	if m.OnClose != nil {
		return m.OnClose()
	}
	return nil
}

// MockDialer выдаёт Printer и считает подключения.
type MockDialer struct {
	OnDial func(ctx context.Context, p models.DeviceProfile) (ports.Printer, error)

	mu    sync.Mutex
	dials int
}

func (d *MockDialer) Dial(ctx context.Context, p models.DeviceProfile) (ports.Printer, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.OnDial != nil {
		return d.OnDial(ctx, p)
	}
	return &MockPrinter{}, nil
}

// Dials сколько раз вызывался Dial.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// MemoryRegistry реестр устройств в памяти.
type MemoryRegistry struct {
	mu      sync.Mutex
	devices map[string]models.DeviceProfile
	Err     error // если задано, возвращается всеми методами
}

// NewMemoryRegistry создает реестр с заданными профилями.
func NewMemoryRegistry(profiles ...models.DeviceProfile) *MemoryRegistry {
	r := &MemoryRegistry{devices: make(map[string]models.DeviceProfile)}
	for _, p := range profiles {
		r.devices[p.Address] = p
	}
	return r
}

func (r *MemoryRegistry) FindDevice(address string) (*models.DeviceProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.devices[address]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRegistry) LoadDevices() ([]*models.DeviceProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*models.DeviceProfile, 0, len(r.devices))
	for _, p := range r.devices {
		cp := p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRegistry) UpsertDevice(p *models.DeviceProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.devices[p.Address] = *p
	return nil
}

func (r *MemoryRegistry) DeleteDevice(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.devices[address]; !ok {
		return models.ErrDeviceNotFound
	}
	delete(r.devices, address)
	return nil
}
