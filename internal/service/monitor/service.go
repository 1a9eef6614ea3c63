package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"posprint/internal/domain/models"
	"posprint/internal/domain/ports"
	"posprint/internal/infrastructure/metrics"
)

// StatusReader читает коды состояния принтера по адресу кассы (в собственном сеансе).
type StatusReader interface {
	Status(ctx context.Context, address string) (models.WarningSet, error)
}

// DeviceState последнее известное состояние принтера.
type DeviceState struct {
	Address     string             `json:"address"`
	Reachable   bool               `json:"reachable"`
	Warnings    models.WarningSet  `json:"warnings"`
	Disposition models.Disposition `json:"disposition"`
	Error       string             `json:"error,omitempty"`
	LastUpdate  time.Time          `json:"lastUpdate"`
}

// Config содержит конфигурацию опроса
type Config struct {
	PollInterval time.Duration // Интервал опроса
	ProbeTimeout time.Duration // Предел на опрос одного принтера
	Parallelism  int           // Сколько принтеров опрашивать одновременно
}

// Service периодически опрашивает все зарегистрированные принтеры
type Service struct {
	registry ports.DeviceRegistry
	reader   StatusReader
	logger   ports.Logger
	metrics  *metrics.Recorder
	config   Config

	mutex  sync.Mutex
	states map[string]DeviceState
	now    func() time.Time
}

// NewService создает новый экземпляр сервиса мониторинга
func NewService(registry ports.DeviceRegistry, reader StatusReader, logger ports.Logger, m *metrics.Recorder, cfg Config) *Service {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Service{
		registry: registry,
		reader:   reader,
		logger:   logger,
		metrics:  m,
		config:   cfg,
		states:   make(map[string]DeviceState),
		now:      time.Now,
	}
}

// Run опрашивает принтеры до отмены ctx. Первый опрос выполняется сразу.
func (s *Service) Run(ctx context.Context) error {
	if s.config.PollInterval <= 0 {
		return nil
	}
	s.logger.Info("мониторинг принтеров запущен, интервал %s", s.config.PollInterval)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.PollOnce(ctx); err != nil {
			s.logger.Warn("мониторинг: %v", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("мониторинг принтеров остановлен")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce опрашивает все принтеры реестра один раз.
func (s *Service) PollOnce(ctx context.Context) error {
	devices, err := s.registry.LoadDevices()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallelism)
	for _, d := range devices {
		address := d.Address
		g.Go(func() error {
			s.probe(ctx, address)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.forgetRemoved(devices)
	return nil
}

// States возвращает состояния всех опрошенных принтеров, отсортированные по адресу.
func (s *Service) States() []DeviceState {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]DeviceState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// probe опрашивает один принтер. Если опрос прерван остановкой сервиса,
// прежнее состояние сохраняется.
func (s *Service) probe(ctx context.Context, address string) {
	probeCtx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	defer cancel()

	warnings, err := s.reader.Status(probeCtx, address)
	if ctx.Err() != nil {
		return
	}
	state := DeviceState{
		Address:    address,
		Reachable:  err == nil,
		Warnings:   models.NewWarningSet(warnings...),
		LastUpdate: s.now(),
	}
	state.Disposition = models.Classify(state.Warnings)
	if err != nil {
		state.Error = err.Error()
		state.Disposition = models.Failure
	}

	s.mutex.Lock()
	prev, known := s.states[address]
	s.states[address] = state
	s.mutex.Unlock()

	s.metrics.ObserveDevice(address, state.Reachable, len(state.Warnings))

	// Логируем только смену состояния
	switch {
	case known && prev.Reachable == state.Reachable && equalSets(prev.Warnings, state.Warnings):
	case !state.Reachable:
		s.logger.Warn("принтер %s недоступен: %s", address, state.Error)
	case len(state.Warnings) > 0:
		s.logger.Warn("принтер %s сообщает: %v", address, state.Warnings)
	default:
		s.logger.Info("принтер %s в порядке", address)
	}
}

func (s *Service) forgetRemoved(devices []*models.DeviceProfile) {
	keep := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		keep[d.Address] = struct{}{}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for address := range s.states {
		if _, ok := keep[address]; !ok {
			delete(s.states, address)
			s.metrics.ForgetDevice(address)
		}
	}
}

func equalSets(a, b models.WarningSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
