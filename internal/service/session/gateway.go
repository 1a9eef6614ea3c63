// Package session выдаёт эксклюзивные сеансы работы с принтером по сетевому адресу кассы.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/infrastructure/metrics"
)

// DefaultAcquireWait сколько ждать освобождения занятого принтера, если не задано.
const DefaultAcquireWait = 10 * time.Second

// Gateway находит принтер по адресу и выдаёт на него не более одного сеанса одновременно.
type Gateway struct {
	registry    ports.DeviceRegistry
	dialer      ports.PrinterDialer
	logger      ports.Logger
	metrics     *metrics.Recorder
	acquireWait time.Duration

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// Options необязательные параметры Gateway.
type Options struct {
	AcquireWait time.Duration
	Metrics     *metrics.Recorder
}

// NewGateway создает новый экземпляр Gateway.
func NewGateway(registry ports.DeviceRegistry, dialer ports.PrinterDialer, logger ports.Logger, opts Options) *Gateway {
	if opts.AcquireWait <= 0 {
		opts.AcquireWait = DefaultAcquireWait
	}
	return &Gateway{
		registry:    registry,
		dialer:      dialer,
		logger:      logger,
		metrics:     opts.Metrics,
		acquireWait: opts.AcquireWait,
		locks:       make(map[string]*semaphore.Weighted),
	}
}

// Acquire открывает сеанс. Вызывающий обязан вызвать Release; удобнее использовать WithSession.
//
// Ошибки: ErrDeviceNotFound (адрес не зарегистрирован), ErrTimedOut (принтер занят дольше
// acquireWait или истёк контекст), ErrConnectFailed (не удалось подключиться).
func (g *Gateway) Acquire(ctx context.Context, address string) (*Session, error) {
	address = strings.TrimSpace(address)
	start := time.Now()

	profile, err := g.registry.FindDevice(address)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения реестра устройств: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrDeviceNotFound, address)
	}

	lock := g.lockFor(address)
	waitCtx, cancel := context.WithTimeout(ctx, g.acquireWait)
	defer cancel()
	if err := lock.Acquire(waitCtx, 1); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: принтер %s занят", models.ErrTimedOut, address)
	}

	printer, err := g.dialer.Dial(ctx, *profile)
	if err != nil {
		lock.Release(1)
		return nil, dialError(ctx, address, err)
	}

	g.metrics.SessionOpened(time.Since(start))
	g.logger.Debug("сеанс открыт: %s", address)

	return &Session{
		address: address,
		profile: *profile,
		printer: printer,
		release: func() error {
			err := printer.Close()
			lock.Release(1)
			g.metrics.SessionClosed()
			g.logger.Debug("сеанс закрыт: %s", address)
			return err
		},
	}, nil
}

// WithSession открывает сеанс, вызывает fn и освобождает сеанс на любом пути выхода,
// включая панику. Ошибка освобождения только логируется и не подменяет ошибку fn.
func (g *Gateway) WithSession(ctx context.Context, address string, fn func(*Session) error) error {
	s, err := g.Acquire(ctx, address)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := s.Release(); rerr != nil {
			g.logger.Warn("ошибка закрытия сеанса %s: %v", s.Address(), rerr)
		}
	}()
	return fn(s)
}

func (g *Gateway) lockFor(address string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[address]
	if !ok {
		l = semaphore.NewWeighted(1)
		g.locks[address] = l
	}
	return l
}

func dialError(ctx context.Context, address string, err error) error {
	switch {
	case errors.Is(err, models.ErrTimedOut), errors.Is(err, models.ErrConnectFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: подключение к %s: %v", models.ErrTimedOut, address, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", models.ErrConnectFailed, address, err)
	}
}

// Session эксклюзивный сеанс работы с одним принтером.
type Session struct {
	address string
	profile models.DeviceProfile
	printer ports.Printer
	release func() error

	once       sync.Once
	releaseErr error
}

// Address адрес кассы, по которому открыт сеанс.
func (s *Session) Address() string { return s.address }

// Profile профиль устройства.
func (s *Session) Profile() models.DeviceProfile { return s.profile }

// Printer принтер сеанса. После Release использовать нельзя.
func (s *Session) Printer() ports.Printer { return s.printer }

// Release закрывает соединение и отпускает адрес. Повторные вызовы ничего не делают.
func (s *Session) Release() error {
	s.once.Do(func() {
		s.releaseErr = s.release()
	})
	return s.releaseErr
}
