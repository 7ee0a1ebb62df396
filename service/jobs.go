package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"emusync/jobstore"
	"emusync/models"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrDeviceNotFound = errors.New("device not found")
	ErrServerConfig   = errors.New("server config unavailable")
)

// ConnectionFailedLine is the only output of a job whose device was unreachable.
const ConnectionFailedLine = "Connection test failed"

// settleTimeout bounds the final status write, which runs after the job context is gone.
const settleTimeout = 10 * time.Second

// RequestError carries a client-facing message for one of the sentinel errors above.
type RequestError struct {
	Kind error
	Msg  string
}

func (e *RequestError) Error() string { return e.Msg }
func (e *RequestError) Unwrap() error { return e.Kind }

func requestError(kind error, format string, args ...any) error {
	return &RequestError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ConnectionChecker probes a device before a job is created.
type ConnectionChecker interface {
	ConnectionTest(ctx context.Context, device models.Device) bool
}

// DeviceSyncer runs a validated request against a device.
type DeviceSyncer interface {
	RunDeviceSync(ctx context.Context, req models.DeviceSyncRequest, device models.Device, server models.ServerConfig, jobID string) ([]string, error)
}

// DeviceLookup resolves devices and the server config for a request.
type DeviceLookup interface {
	GetDevice(name string) (models.Device, bool)
	ServerConfig() (models.ServerConfig, error)
}

// JobManager owns the job lifecycle: IN_PROGRESS, then COMPLETE or FAILED.
type JobManager struct {
	store      jobstore.Store
	devices    DeviceLookup
	checker    ConnectionChecker
	syncer     DeviceSyncer
	dispatcher *Dispatcher
	publisher  Publisher
	logger     zerolog.Logger
	newID      func() string
}

func NewJobManager(store jobstore.Store, devices DeviceLookup, checker ConnectionChecker, syncer DeviceSyncer,
	dispatcher *Dispatcher, publisher Publisher, logger zerolog.Logger) *JobManager {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &JobManager{
		store:      store,
		devices:    devices,
		checker:    checker,
		syncer:     syncer,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger.With().Str("component", "jobs").Logger(),
		newID:      uuid.NewString,
	}
}

// Validate checks the request shape against the known emulators and actions.
func Validate(req models.DeviceSyncRequest) error {
	if req.DeviceName == "" {
		return requestError(ErrInvalidRequest, "Missing deviceName")
	}
	if req.EmulatorActions == nil {
		return requestError(ErrInvalidRequest, "Missing emulatorActions (array of { emulator, action })")
	}
	if len(req.EmulatorActions) == 0 {
		return requestError(ErrInvalidRequest, "emulatorActions must include at least one entry")
	}
	for _, entry := range req.EmulatorActions {
		if !entry.Emulator.Valid() {
			return requestError(ErrInvalidRequest, "Invalid emulator '%s'. Must be one of: %s", entry.Emulator, joinEnum(models.Emulators))
		}
		if !entry.Action.Valid() {
			return requestError(ErrInvalidRequest, "Invalid action '%s' for emulator '%s'. Must be one of: %s",
				entry.Action, entry.Emulator, joinEnum(models.SyncActions))
		}
	}
	return nil
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// Submit validates req, probes the device and queues the sync.
//
// An unreachable device yields a FAILED response that is never stored.
// Otherwise the IN_PROGRESS record is stored before the job is queued and
// returned immediately.
func (m *JobManager) Submit(ctx context.Context, req models.DeviceSyncRequest) (models.DeviceSyncResponse, error) {
	if err := Validate(req); err != nil {
		return models.DeviceSyncResponse{}, err
	}

	device, ok := m.devices.GetDevice(req.DeviceName)
	if !ok {
		return models.DeviceSyncResponse{}, requestError(ErrDeviceNotFound, "Device '%s' not found", req.DeviceName)
	}
	server, err := m.devices.ServerConfig()
	if err != nil {
		m.logger.Error().Err(err).Msg("refusing sync without a usable server config")
		return models.DeviceSyncResponse{}, requestError(ErrServerConfig, "Server info not initialized")
	}

	id := m.newID()
	logger := m.logger.With().Str("job", id).Str("device", device.Name).Logger()

	if !m.checker.ConnectionTest(ctx, device) {
		logger.Warn().Msg("device unreachable")
		return models.DeviceSyncResponse{
			ID: id,
			DeviceSyncRecord: models.DeviceSyncRecord{
				DeviceSyncRequest: req,
				Status:            models.StatusFailed,
				Output:            []string{ConnectionFailedLine},
			},
		}, nil
	}

	rec := models.DeviceSyncRecord{
		DeviceSyncRequest: req,
		Status:            models.StatusInProgress,
		Output:            []string{},
	}
	if err := m.store.Create(ctx, id, rec); err != nil {
		return models.DeviceSyncResponse{}, fmt.Errorf("creating job: %w", err)
	}

	task := func(ctx context.Context) error {
		_, err := m.syncer.RunDeviceSync(ctx, req, device, server, id)
		return err
	}
	if err := m.dispatcher.Dispatch(id, task, func(err error) { m.settle(id, err) }); err != nil {
		logger.Error().Err(err).Msg("job not queued")
		if settled, ok := m.settle(id, err); ok {
			rec = settled
		}
		return models.DeviceSyncResponse{ID: id, DeviceSyncRecord: rec}, nil
	}

	logger.Info().Int("actions", len(req.EmulatorActions)).Msg("job queued")
	return models.DeviceSyncResponse{ID: id, DeviceSyncRecord: rec}, nil
}

// Get returns the current record, or jobstore.ErrNotFound once it has expired.
func (m *JobManager) Get(ctx context.Context, id string) (models.DeviceSyncResponse, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return models.DeviceSyncResponse{}, err
	}
	return models.DeviceSyncResponse{ID: id, DeviceSyncRecord: rec}, nil
}

// settle writes the terminal status on top of whatever the job journaled.
func (m *JobManager) settle(id string, runErr error) (models.DeviceSyncRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	status := models.StatusComplete
	var errLine string
	if runErr != nil {
		status = models.StatusFailed
		errLine = "error:" + runErr.Error()
	}

	rec, err := m.store.Update(ctx, id, func(rec *models.DeviceSyncRecord) error {
		rec.Status = status
		if errLine != "" {
			rec.Output = append(rec.Output, errLine)
		}
		return nil
	})
	if err != nil {
		m.logger.Error().Err(err).Str("job", id).Str("status", string(status)).Msg("failed to settle job")
		return models.DeviceSyncRecord{}, false
	}

	if errLine != "" {
		m.publisher.PublishLog(id, errLine)
	}
	m.publisher.PublishStatus(id, status)
	m.logger.Info().Str("job", id).Str("status", string(status)).Msg("job settled")
	return rec, true
}
