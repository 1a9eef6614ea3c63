package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/domain/ports/portstest"
	"posprint/internal/infrastructure/logger"
	"posprint/internal/service/session"
)

func newService(printer *portstest.MockPrinter) (*ConnectionService, *portstest.MemoryRegistry) {
	registry := portstest.NewMemoryRegistry(models.DeviceProfile{Address: "10.0.0.5", TCPPort: 4999})
	dialer := &portstest.MockDialer{
		OnDial: func(context.Context, models.DeviceProfile) (ports.Printer, error) { return printer, nil },
	}
	gw := session.NewGateway(registry, dialer, logger.NewNop(), session.Options{AcquireWait: time.Second})
	return NewConnectionService(gw, registry, time.Second), registry
}

func TestGetSystemPortsSorted(t *testing.T) {
	s, _ := newService(&portstest.MockPrinter{})
	s.listPorts = func() ([]string, error) { return []string{"COM9", "COM10", "COM1"}, nil }

	list, err := s.GetSystemPorts()
	require.NoError(t, err)
	assert.Equal(t, []string{"COM1", "COM10", "COM9"}, list)

	s.listPorts = func() ([]string, error) { return nil, errors.New("no access") }
	_, err = s.GetSystemPorts()
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	printer := &portstest.MockPrinter{
		OnStatus: func(context.Context) (models.WarningSet, error) {
			return models.NewWarningSet(models.StatusNearPaperEnd), nil
		},
	}
	s, _ := newService(printer)

	w, err := s.Status(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, models.NewWarningSet(models.StatusNearPaperEnd), w)
	assert.Equal(t, 1, printer.Closed())

	_, err = s.Status(context.Background(), "0.0.0.0")
	assert.True(t, errors.Is(err, models.ErrDeviceNotFound))
}

func TestSaveDeviceValidation(t *testing.T) {
	s, registry := newService(&portstest.MockPrinter{})

	err := s.SaveDevice(&models.DeviceProfile{Address: "10.0.0.7"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	err = s.SaveDevice(&models.DeviceProfile{Address: "10.0.0.7", ConnectionType: models.ConnectionCOM})
	assert.True(t, errors.Is(err, models.ErrValidation))

	err = s.SaveDevice(&models.DeviceProfile{Address: "10.0.0.7", ConnectionType: "usb"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	require.NoError(t, s.SaveDevice(&models.DeviceProfile{Address: "10.0.0.7", TCPPort: 4999}))
	p, err := registry.FindDevice("10.0.0.7")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.ConnectionTCP, p.ConnectionType)

	devices, err := s.LoadDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	require.NoError(t, s.DeleteDevice("10.0.0.7"))
	assert.True(t, errors.Is(s.DeleteDevice("10.0.0.7"), models.ErrDeviceNotFound))
}
