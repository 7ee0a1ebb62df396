package remote

import (
	"context"

	"github.com/rs/zerolog"

	"emusync/models"
)

const echoProbe = "echo hello_emusync"

// Prechecker probes whether a device is reachable before any transfer starts.
type Prechecker struct {
	runner Runner
	dial   FTPDialer
	logger zerolog.Logger
}

func NewPrechecker(runner Runner, dial FTPDialer, logger zerolog.Logger) *Prechecker {
	return &Prechecker{runner: runner, dial: dial, logger: logger}
}

// ConnectionTest never fails loudly: every error means unreachable.
func (p *Prechecker) ConnectionTest(ctx context.Context, device models.Device) bool {
	if device.SyncType == models.SyncFTP {
		conn, err := openFTP(ctx, p.dial, device)
		if err != nil {
			p.logger.Error().Err(err).Str("device", device.Name).Msg("failed to connect to device via ftp")
			return false
		}
		_ = conn.Quit()
		return true
	}

	if err := p.runner.Run(ctx, "", SSHCommand(device, echoProbe), false); err != nil {
		p.logger.Error().Err(err).Str("device", device.Name).Msg("failed to connect to device via ssh")
		return false
	}
	return true
}
