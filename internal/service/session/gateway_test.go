package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/domain/ports/portstest"
	"posprint/internal/infrastructure/logger"
	"posprint/internal/infrastructure/metrics"
)

const addr = "10.0.0.5"

func newGateway(dialer ports.PrinterDialer, wait time.Duration) *Gateway {
	registry := portstest.NewMemoryRegistry(models.DeviceProfile{Address: addr, TCPPort: 4999})
	return NewGateway(registry, dialer, logger.NewNop(), Options{
		AcquireWait: wait,
		Metrics:     metrics.New(prometheus.NewRegistry()),
	})
}

func TestAcquireUnknownAddress(t *testing.T) {
	dialer := &portstest.MockDialer{}
	g := newGateway(dialer, time.Second)

	_, err := g.Acquire(context.Background(), "0.0.0.0")
	assert.True(t, errors.Is(err, models.ErrDeviceNotFound), "got %v", err)
	assert.Equal(t, 0, dialer.Dials())
}

func TestRegistryFailure(t *testing.T) {
	registry := portstest.NewMemoryRegistry()
	registry.Err = errors.New("disk is gone")
	g := NewGateway(registry, &portstest.MockDialer{}, logger.NewNop(), Options{})

	_, err := g.Acquire(context.Background(), addr)
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrDeviceNotFound))
}

func TestReleaseIsIdempotent(t *testing.T) {
	printer := &portstest.MockPrinter{}
	g := newGateway(&portstest.MockDialer{
		OnDial: func(context.Context, models.DeviceProfile) (ports.Printer, error) { return printer, nil },
	}, time.Second)

	s, err := g.Acquire(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, addr, s.Address())
	assert.Equal(t, 4999, s.Profile().TCPPort)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.Equal(t, 1, printer.Closed())

	// Адрес снова свободен.
	s2, err := g.Acquire(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, s2.Release())
}

func TestBusyAddressTimesOut(t *testing.T) {
	g := newGateway(&portstest.MockDialer{}, 50*time.Millisecond)

	s, err := g.Acquire(context.Background(), addr)
	require.NoError(t, err)
	defer s.Release()

	_, err = g.Acquire(context.Background(), addr)
	assert.True(t, errors.Is(err, models.ErrTimedOut), "got %v", err)
}

func TestWaiterGetsSessionAfterRelease(t *testing.T) {
	g := newGateway(&portstest.MockDialer{}, time.Second)

	s, err := g.Acquire(context.Background(), addr)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- g.WithSession(context.Background(), addr, func(*Session) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Release())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not admitted")
	}
}

func TestCanceledContextWhileWaiting(t *testing.T) {
	g := newGateway(&portstest.MockDialer{}, time.Second)
	s, err := g.Acquire(context.Background(), addr)
	require.NoError(t, err)
	defer s.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Acquire(ctx, addr)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestDialFailureReleasesAddress(t *testing.T) {
	fail := true
	dialer := &portstest.MockDialer{
		OnDial: func(context.Context, models.DeviceProfile) (ports.Printer, error) {
			if fail {
				return nil, errors.New("connection refused")
			}
			return &portstest.MockPrinter{}, nil
		},
	}
	g := newGateway(dialer, 50*time.Millisecond)

	_, err := g.Acquire(context.Background(), addr)
	assert.True(t, errors.Is(err, models.ErrConnectFailed), "got %v", err)

	fail = false
	s, err := g.Acquire(context.Background(), addr)
	require.NoError(t, err, "failed dial must not leave the address locked")
	require.NoError(t, s.Release())
}

func TestDialErrorsKeepTaxonomy(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		want error
	}{
		"timed out":      {fmt.Errorf("%w: x", models.ErrTimedOut), models.ErrTimedOut},
		"connect failed": {fmt.Errorf("%w: x", models.ErrConnectFailed), models.ErrConnectFailed},
		"deadline":       {context.DeadlineExceeded, models.ErrTimedOut},
		"other":          {errors.New("boom"), models.ErrConnectFailed},
	} {
		t.Run(name, func(t *testing.T) {
			g := newGateway(&portstest.MockDialer{
				OnDial: func(context.Context, models.DeviceProfile) (ports.Printer, error) { return nil, tc.err },
			}, time.Second)
			_, err := g.Acquire(context.Background(), addr)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestWithSessionReleaseErrorDoesNotMaskResult(t *testing.T) {
	printer := &portstest.MockPrinter{OnClose: func() error { return errors.New("close failed") }}
	g := newGateway(&portstest.MockDialer{
		OnDial: func(context.Context, models.DeviceProfile) (ports.Printer, error) { return printer, nil },
	}, time.Second)

	err := g.WithSession(context.Background(), addr, func(*Session) error { return nil })
	assert.NoError(t, err)

	primary := errors.New("primary")
	err = g.WithSession(context.Background(), addr, func(*Session) error { return primary })
	assert.Equal(t, primary, err)
	assert.Equal(t, 2, printer.Closed())
}

// Сбой на каждом этапе: после любого исхода число освобождений равно числу захватов.
func TestReleaseCountMatchesAcquireCount(t *testing.T) {
	var acquired, released atomic.Int32
	dialer := &portstest.MockDialer{
		OnDial: func(context.Context, models.DeviceProfile) (ports.Printer, error) {
			acquired.Add(1)
			return &portstest.MockPrinter{OnClose: func() error {
				released.Add(1)
				return errors.New("close failed")
			}}, nil
		},
	}
	g := newGateway(dialer, time.Second)

	faults := []func(*Session) error{
		func(*Session) error { return nil },
		func(*Session) error { return fmt.Errorf("%w: stalled", models.ErrTimedOut) },
		func(*Session) error { return &models.DeviceWarningError{Warnings: models.NewWarningSet(models.StatusCoverIsOpen)} },
		func(*Session) error { return errors.New("unexpected") },
		func(s *Session) error { s.Release(); return nil },
		func(*Session) error { panic("driver bug") },
	}

	for _, fn := range faults {
		func() {
			defer func() { recover() }()
			_ = g.WithSession(context.Background(), addr, fn)
		}()
	}

	assert.Equal(t, int32(len(faults)), acquired.Load())
	assert.Equal(t, acquired.Load(), released.Load())
}

func TestSessionsAreExclusive(t *testing.T) {
	var active, maxActive atomic.Int32
	g := newGateway(&portstest.MockDialer{}, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.WithSession(context.Background(), addr, func(*Session) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}
