package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"emusync/models"
)

// Seed is the db.json layout: every device plus the server paths.
type Seed struct {
	Devices []models.Device      `json:"devices" yaml:"devices"`
	Server  *models.ServerConfig `json:"server" yaml:"server"`
}

// ImportStats summarises an import.
type ImportStats struct {
	Created int
	Updated int
	Skipped int
	Server  bool
}

// ParseSeed decodes a JSON or YAML seed document.
// JSON goes through encoding/json since tab-indented JSON is not valid YAML.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if json.Valid(data) {
		if err := json.Unmarshal(data, &seed); err != nil {
			return Seed{}, fmt.Errorf("parsing seed: %w", err)
		}
		return seed, nil
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed: %w", err)
	}
	return seed, nil
}

// ImportFile loads a seed file and upserts its contents into repo.
func ImportFile(ctx context.Context, fs afero.Fs, path string, repo Repository, logger zerolog.Logger) (ImportStats, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("reading seed %s: %w", path, err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return ImportStats{}, err
	}
	return Import(ctx, seed, repo, logger)
}

// Import upserts every named device and, when present, the server config.
// Devices are stored as given; verification happens when they are loaded.
func Import(ctx context.Context, seed Seed, repo Repository, logger zerolog.Logger) (ImportStats, error) {
	var stats ImportStats
	for _, d := range seed.Devices {
		if d.Name == "" {
			logger.Warn().Str("ip", d.IP).Msg("skipping unnamed device in seed")
			stats.Skipped++
			continue
		}

		_, err := repo.GetDevice(ctx, d.Name)
		switch {
		case errors.Is(err, ErrDeviceNotFound):
			if err := repo.CreateDevice(ctx, d); err != nil {
				return stats, err
			}
			stats.Created++
		case err != nil:
			return stats, err
		default:
			if err := repo.UpdateDevice(ctx, d.Name, d); err != nil {
				return stats, err
			}
			stats.Updated++
		}
	}

	if seed.Server != nil {
		if err := repo.PutServer(ctx, *seed.Server); err != nil {
			return stats, err
		}
		stats.Server = true
	}

	logger.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Bool("server", stats.Server).
		Msg("seed imported")
	return stats, nil
}
