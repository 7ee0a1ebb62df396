package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"emusync/emulators"
	"emusync/models"
	"emusync/registry"
)

// DeviceManager serves a verified in-memory snapshot of the registry.
// Reload swaps the snapshot; syncs already running keep the copy they started with.
type DeviceManager struct {
	repo   registry.Repository
	logger zerolog.Logger

	mu        sync.RWMutex
	devices   map[string]models.Device
	order     []string
	server    models.ServerConfig
	serverErr error
}

func NewDeviceManager(repo registry.Repository, logger zerolog.Logger) *DeviceManager {
	return &DeviceManager{
		repo:      repo,
		logger:    logger.With().Str("component", "devices").Logger(),
		devices:   make(map[string]models.Device),
		serverErr: registry.ErrServerNotFound,
	}
}

// Reload reads devices and server config from the registry.
// A missing or incomplete server config is remembered, not returned: device
// listing keeps working while syncs are refused.
func (m *DeviceManager) Reload(ctx context.Context) error {
	raw, err := m.repo.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	verified := registry.VerifyDevices(raw, m.logger)

	server, serverErr := m.repo.GetServer(ctx)
	if serverErr != nil && !errors.Is(serverErr, registry.ErrServerNotFound) {
		return fmt.Errorf("loading server config: %w", serverErr)
	}
	if serverErr == nil {
		serverErr = registry.VerifyServer(server)
	}
	if serverErr != nil {
		m.logger.Warn().Err(serverErr).Msg("server config unusable, syncs will be refused")
	}

	devices := make(map[string]models.Device, len(verified))
	order := make([]string, 0, len(verified))
	for _, d := range verified {
		devices[d.Name] = d
		order = append(order, d.Name)
	}

	m.mu.Lock()
	m.devices = devices
	m.order = order
	m.server = server
	m.serverErr = serverErr
	m.mu.Unlock()

	m.logger.Info().Int("devices", len(order)).Msg("registry loaded")
	return nil
}

// GetAllDevices returns the public device summaries sorted by name.
func (m *DeviceManager) GetAllDevices() []models.SimpleDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]models.SimpleDevice, 0, len(m.order))
	for _, name := range m.order {
		devices = append(devices, emulators.Simplify(m.devices[name]))
	}
	return devices
}

// GetDevice returns a single device by name
func (m *DeviceManager) GetDevice(name string) (models.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[name]
	return d, ok
}

// ServerConfig returns the verified server config, or why it is unusable.
func (m *DeviceManager) ServerConfig() (models.ServerConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.server, m.serverErr
}
