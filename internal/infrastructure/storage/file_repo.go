package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"posprint/internal/domain/models"
)

// FileDeviceRegistry реализует интерфейс ports.DeviceRegistry поверх YAML-файла.
// Файл перечитывается, если его изменили снаружи (например, командой devices add).
type FileDeviceRegistry struct {
	mu       sync.Mutex
	filePath string
	modTime  time.Time
	devices  []*models.DeviceProfile
}

type registryFile struct {
	Devices []*models.DeviceProfile `yaml:"devices"`
}

// NewFileDeviceRegistry создает реестр по пути к файлу. Отсутствующий файл означает пустой реестр.
func NewFileDeviceRegistry(filePath string) (*FileDeviceRegistry, error) {
	repo := &FileDeviceRegistry{
		filePath: filePath,
	}

	if err := repo.loadFromFile(); err != nil {
		return nil, fmt.Errorf("ошибка инициализации реестра: %w", err)
	}

	return repo, nil
}

// FindDevice находит профиль по адресу кассы. Возвращает nil, nil если адрес не зарегистрирован.
func (r *FileDeviceRegistry) FindDevice(address string) (*models.DeviceProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return nil, err
	}

	address = strings.TrimSpace(address)
	for _, p := range r.devices {
		if p.Address == address {
			cp := *p
			return &cp, nil
		}
	}

	return nil, nil
}

// LoadDevices возвращает копии всех профилей, отсортированные по адресу.
func (r *FileDeviceRegistry) LoadDevices() ([]*models.DeviceProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return nil, err
	}

	result := make([]*models.DeviceProfile, 0, len(r.devices))
	for _, p := range r.devices {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

// UpsertDevice добавляет или обновляет профиль по адресу.
func (r *FileDeviceRegistry) UpsertDevice(profile *models.DeviceProfile) error {
	if profile == nil || strings.TrimSpace(profile.Address) == "" {
		return &models.ValidationError{Field: "address", Reason: "обязательное поле"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return err
	}

	cp := *profile
	cp.Address = strings.TrimSpace(cp.Address)
	cp.UpdatedAt = time.Now().UTC()

	found := false
	for i, p := range r.devices {
		if p.Address == cp.Address {
			r.devices[i] = &cp
			found = true
			break
		}
	}

	if !found {
		r.devices = append(r.devices, &cp)
	}

	return r.saveToFile()
}

// DeleteDevice удаляет профиль по адресу.
func (r *FileDeviceRegistry) DeleteDevice(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return err
	}

	address = strings.TrimSpace(address)
	for i, p := range r.devices {
		if p.Address == address {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			return r.saveToFile()
		}
	}

	return fmt.Errorf("%w: %s", models.ErrDeviceNotFound, address)
}

// refreshLocked перечитывает файл, если он изменился после последней загрузки.
func (r *FileDeviceRegistry) refreshLocked() error {
	info, err := os.Stat(r.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !r.modTime.IsZero() {
				r.devices = make([]*models.DeviceProfile, 0)
				r.modTime = time.Time{}
			}
			return nil
		}
		return fmt.Errorf("ошибка чтения файла реестра: %w", err)
	}
	if info.ModTime().Equal(r.modTime) {
		return nil
	}
	return r.loadFromFile()
}

// loadFromFile загружает профили из YAML-файла (не потокобезопасно).
func (r *FileDeviceRegistry) loadFromFile() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.devices = make([]*models.DeviceProfile, 0)
			return nil
		}
		return fmt.Errorf("ошибка чтения файла реестра: %w", err)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("ошибка разбора YAML: %w", err)
	}

	seen := make(map[string]struct{}, len(rf.Devices))
	devices := make([]*models.DeviceProfile, 0, len(rf.Devices))
	for _, p := range rf.Devices {
		if p == nil {
			continue
		}
		p.Address = strings.TrimSpace(p.Address)
		if p.Address == "" {
			return fmt.Errorf("ошибка разбора YAML: профиль без адреса")
		}
		if _, dup := seen[p.Address]; dup {
			return fmt.Errorf("ошибка разбора YAML: адрес %s указан дважды", p.Address)
		}
		seen[p.Address] = struct{}{}
		devices = append(devices, p)
	}
	r.devices = devices

	if info, err := os.Stat(r.filePath); err == nil {
		r.modTime = info.ModTime()
	}
	return nil
}

// saveToFile атомарно записывает реестр (не потокобезопасно).
func (r *FileDeviceRegistry) saveToFile() error {
	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ошибка создания директории: %w", err)
	}

	data, err := yaml.Marshal(registryFile{Devices: r.devices})
	if err != nil {
		return fmt.Errorf("ошибка сериализации YAML: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.yaml")
	if err != nil {
		return fmt.Errorf("ошибка записи файла реестра: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка записи файла реестра: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ошибка записи файла реестра: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.filePath); err != nil {
		return fmt.Errorf("ошибка записи файла реестра: %w", err)
	}

	if info, err := os.Stat(r.filePath); err == nil {
		r.modTime = info.ModTime()
	}
	return nil
}
