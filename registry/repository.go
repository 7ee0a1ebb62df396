// Package registry persists the devices and the server configuration.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"emusync/models"
)

var (
	// ErrDeviceNotFound is returned when no device has the requested name.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceExists is returned when a device name is already taken.
	ErrDeviceExists = errors.New("device with this name already exists")

	// ErrServerNotFound is returned before any server config has been stored.
	ErrServerNotFound = errors.New("server config not found")
)

// Repository defines registry persistence.
// Devices are returned exactly as stored; callers verify them.
type Repository interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, name string) (models.Device, error)
	CreateDevice(ctx context.Context, device models.Device) error
	// UpdateDevice replaces the device stored under name. device.Name may differ to rename it.
	UpdateDevice(ctx context.Context, name string, device models.Device) error
	DeleteDevice(ctx context.Context, name string) error

	GetServer(ctx context.Context) (models.ServerConfig, error)
	PutServer(ctx context.Context, server models.ServerConfig) error
}

// SQLRepository implements Repository on sqlite.
type SQLRepository struct {
	db      *sql.DB
	logger  zerolog.Logger
	builder sq.StatementBuilderType
	now     func() time.Time
}

func NewSQLRepository(db *sql.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		logger:  logger.With().Str("component", "registry").Logger(),
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now:     time.Now,
	}
}

func (r *SQLRepository) ListDevices(ctx context.Context) ([]models.Device, error) {
	query, args, err := r.builder.
		Select("data").
		From("devices").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list devices query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		var d models.Device
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("decoding device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func (r *SQLRepository) GetDevice(ctx context.Context, name string) (models.Device, error) {
	query, args, err := r.builder.
		Select("data").
		From("devices").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return models.Device{}, fmt.Errorf("building get device query: %w", err)
	}

	var data string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Device{}, ErrDeviceNotFound
		}
		return models.Device{}, fmt.Errorf("getting device %s: %w", name, err)
	}

	var d models.Device
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return models.Device{}, fmt.Errorf("decoding device %s: %w", name, err)
	}
	return d, nil
}

func (r *SQLRepository) CreateDevice(ctx context.Context, device models.Device) error {
	exists, err := r.deviceExists(ctx, device.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrDeviceExists
	}

	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}
	now := r.now()
	query, args, err := r.builder.
		Insert("devices").
		Columns("name", "os", "data", "created_at", "updated_at").
		Values(device.Name, string(device.OS), string(data), now, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert device query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting device %s: %w", device.Name, err)
	}

	r.logger.Info().Str("device", device.Name).Msg("device created")
	return nil
}

func (r *SQLRepository) UpdateDevice(ctx context.Context, name string, device models.Device) error {
	if device.Name != name {
		exists, err := r.deviceExists(ctx, device.Name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDeviceExists, device.Name)
		}
	}

	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}
	query, args, err := r.builder.
		Update("devices").
		Set("name", device.Name).
		Set("os", string(device.OS)).
		Set("data", string(data)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update device query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device %s: %w", name, err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	r.logger.Info().Str("device", name).Str("name", device.Name).Msg("device updated")
	return nil
}

func (r *SQLRepository) DeleteDevice(ctx context.Context, name string) error {
	query, args, err := r.builder.
		Delete("devices").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete device query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", name, err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	r.logger.Info().Str("device", name).Msg("device deleted")
	return nil
}

func (r *SQLRepository) GetServer(ctx context.Context) (models.ServerConfig, error) {
	query, args, err := r.builder.
		Select("data").
		From("server_config").
		Where(sq.Eq{"id": 1}).
		ToSql()
	if err != nil {
		return models.ServerConfig{}, fmt.Errorf("building get server query: %w", err)
	}

	var data string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ServerConfig{}, ErrServerNotFound
		}
		return models.ServerConfig{}, fmt.Errorf("getting server config: %w", err)
	}

	var s models.ServerConfig
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return models.ServerConfig{}, fmt.Errorf("decoding server config: %w", err)
	}
	return s, nil
}

func (r *SQLRepository) PutServer(ctx context.Context, server models.ServerConfig) error {
	data, err := json.Marshal(server)
	if err != nil {
		return fmt.Errorf("encoding server config: %w", err)
	}
	query, args, err := r.builder.
		Insert("server_config").
		Columns("id", "data", "updated_at").
		Values(1, string(data), r.now()).
		Suffix("ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building put server query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storing server config: %w", err)
	}

	r.logger.Info().Msg("server config stored")
	return nil
}

func (r *SQLRepository) deviceExists(ctx context.Context, name string) (bool, error) {
	query, args, err := r.builder.
		Select("COUNT(*)").
		From("devices").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building device exists query: %w", err)
	}
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("checking device %s: %w", name, err)
	}
	return count > 0, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
