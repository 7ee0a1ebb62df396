package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"emusync/jobstore"
	"emusync/models"
	"emusync/registry"
	"emusync/service"
)

// JobService submits and polls sync jobs.
type JobService interface {
	Submit(ctx context.Context, req models.DeviceSyncRequest) (models.DeviceSyncResponse, error)
	Get(ctx context.Context, id string) (models.DeviceSyncResponse, error)
}

// DeviceDirectory is the verified device snapshot the sync endpoints read.
type DeviceDirectory interface {
	GetAllDevices() []models.SimpleDevice
	Reload(ctx context.Context) error
}

type Handlers struct {
	jobs    JobService
	devices DeviceDirectory
	repo    registry.Repository
	logger  zerolog.Logger
}

func NewHandlers(jobs JobService, devices DeviceDirectory, repo registry.Repository, logger zerolog.Logger) *Handlers {
	return &Handlers{
		jobs:    jobs,
		devices: devices,
		repo:    repo,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// respondError writes {"error": msg} and logs the cause, at error level for 5xx.
func (h *Handlers) respondError(c *gin.Context, status int, msg string, err error) {
	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.JSON(status, models.NewError(msg))
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "emusync backend is running",
	})
}

// StartSync validates the request and queues the job. An unreachable device
// still answers 200 with a FAILED record.
func (h *Handlers) StartSync(c *gin.Context) {
	var req models.DeviceSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	resp, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrDeviceNotFound):
			status = http.StatusNotFound
		}
		msg := "Failed to start sync"
		var reqErr *service.RequestError
		if errors.As(err, &reqErr) {
			msg = reqErr.Msg
		}
		h.respondError(c, status, msg, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) GetSync(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		h.respondError(c, http.StatusBadRequest, "Missing id param", nil)
		return
	}

	resp, err := h.jobs.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		h.respondError(c, http.StatusNotFound, fmt.Sprintf("Record '%s' not found", id), err)
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to retrieve record", err)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// GetDevices returns the verified devices with their enabled emulators.
func (h *Handlers) GetDevices(c *gin.Context) {
	c.JSON(http.StatusOK, h.devices.GetAllDevices())
}

func (h *Handlers) GetServerConfig(c *gin.Context) {
	server, err := h.repo.GetServer(c.Request.Context())
	switch {
	case errors.Is(err, registry.ErrServerNotFound):
		h.respondError(c, http.StatusNotFound, "Server config not found", err)
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to load server config", err)
	default:
		c.JSON(http.StatusOK, server)
	}
}

// UpdateServerConfig merges the body onto the stored config.
func (h *Handlers) UpdateServerConfig(c *gin.Context) {
	ctx := c.Request.Context()
	server, err := h.repo.GetServer(ctx)
	if err != nil && !errors.Is(err, registry.ErrServerNotFound) {
		h.respondError(c, http.StatusInternalServerError, "Failed to update server config", err)
		return
	}
	if err := c.ShouldBindJSON(&server); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := h.repo.PutServer(ctx, server); err != nil {
		h.respondError(c, http.StatusInternalServerError, "Failed to update server config", err)
		return
	}
	h.reload(ctx)
	c.JSON(http.StatusOK, server)
}

// ListRawDevices returns the devices exactly as stored, credentials included.
func (h *Handlers) ListRawDevices(c *gin.Context) {
	devices, err := h.repo.ListDevices(c.Request.Context())
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "Failed to load devices", err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handlers) CreateDevice(c *gin.Context) {
	var device models.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := registry.ValidateNewDevice(device); err != nil {
		msg := "Invalid device"
		var missing *registry.MissingFieldsError
		if errors.As(err, &missing) {
			msg = "Missing required field: " + missing.Fields[0]
		}
		h.respondError(c, http.StatusBadRequest, msg, err)
		return
	}

	ctx := c.Request.Context()
	err := h.repo.CreateDevice(ctx, device)
	switch {
	case errors.Is(err, registry.ErrDeviceExists):
		h.respondError(c, http.StatusBadRequest, "Device with this name already exists", err)
		return
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to add device", err)
		return
	}
	h.reload(ctx)
	c.JSON(http.StatusCreated, models.OK())
}

func (h *Handlers) GetRawDevice(c *gin.Context) {
	device, err := h.repo.GetDevice(c.Request.Context(), c.Param("name"))
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		h.respondError(c, http.StatusNotFound, "Device not found", err)
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to load device", err)
	default:
		c.JSON(http.StatusOK, device)
	}
}

// UpdateDevice merges the body onto the stored device. A new "name" renames it.
func (h *Handlers) UpdateDevice(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	device, err := h.repo.GetDevice(ctx, name)
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		h.respondError(c, http.StatusBadRequest, "Device not found", err)
		return
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to update device", err)
		return
	}
	if err := c.ShouldBindJSON(&device); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if device.Name == "" {
		device.Name = name
	}

	err = h.repo.UpdateDevice(ctx, name, device)
	switch {
	case errors.Is(err, registry.ErrDeviceExists):
		h.respondError(c, http.StatusBadRequest, "A device with that name already exists", err)
		return
	case errors.Is(err, registry.ErrDeviceNotFound):
		h.respondError(c, http.StatusBadRequest, "Device not found", err)
		return
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to update device", err)
		return
	}
	h.reload(ctx)
	c.JSON(http.StatusOK, models.OK())
}

func (h *Handlers) DeleteDevice(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.repo.DeleteDevice(ctx, c.Param("name"))
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		h.respondError(c, http.StatusNotFound, "Device not found", err)
		return
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "Failed to delete device", err)
		return
	}
	h.reload(ctx)
	c.JSON(http.StatusOK, models.OK())
}

// reload refreshes the device snapshot after a registry write. The write has
// already succeeded, so a failed reload is only logged.
func (h *Handlers) reload(ctx context.Context) {
	if err := h.devices.Reload(ctx); err != nil {
		h.logger.Error().Err(err).Msg("failed to reload devices after registry change")
	}
}
