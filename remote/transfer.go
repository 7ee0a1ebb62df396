package remote

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"emusync/models"
)

// Transfer moves batches of sync pairs for one emulator.
// Every batch stages into a scratch directory first and only then replaces
// the destination, so a failed copy leaves the old saves untouched.
type Transfer struct {
	runner  Runner
	journal Journal
	dial   FTPDialer
	fs     afero.Fs
	logger zerolog.Logger
}

// NewTransfer creates a Transfer. journal receives the FTP phase lines; shell
// steps are journaled by runner itself. journal may be nil.
func NewTransfer(runner Runner, journal Journal, dial FTPDialer, fs afero.Fs, logger zerolog.Logger) *Transfer {
	return &Transfer{
		runner:  runner,
		journal: journal,
		dial:    dial,
		fs:      fs,
		logger:  logger.With().Str("component", "transfer").Logger(),
	}
}

// PushPairs copies server directories onto device.
func (t *Transfer) PushPairs(ctx context.Context, device models.Device, pairs []models.SyncPair, jobID string) error {
	if len(pairs) == 0 {
		t.logger.Debug().Str("device", device.Name).Msg("nothing configured to push")
		return nil
	}
	if device.SyncType == models.SyncFTP {
		return t.pushFTP(ctx, device, pairs, jobID)
	}

	windows := device.OS == models.OSWindows
	commands := []string{
		SSHCommand(device, RemoveCommand(Escape(device.WorkDir, windows), windows)),
		SSHCommand(device, "mkdir "+device.WorkDir),
	}
	var copies, deletes, moves []string
	for _, p := range pairs {
		copies = append(copies, SCPCommand(device, p.Source, device.WorkDir, true))
		deletes = append(deletes, SSHCommand(device, RemoveCommand(Escape(p.Target, windows), windows)))
		moves = append(moves, SSHCommand(device,
			fmt.Sprintf("mv %s/%s %s", device.WorkDir, FolderName(p.Source), Escape(p.Target, windows))))
	}
	commands = append(commands, copies...)
	commands = append(commands, deletes...)
	commands = append(commands, moves...)

	return t.runAll(ctx, jobID, commands)
}

// PullPairs copies device directories onto the server.
func (t *Transfer) PullPairs(ctx context.Context, device models.Device, server models.ServerConfig, pairs []models.SyncPair, jobID string) error {
	if len(pairs) == 0 {
		t.logger.Debug().Str("device", device.Name).Msg("nothing configured to pull")
		return nil
	}
	if device.SyncType == models.SyncFTP {
		return t.pullFTP(ctx, device, server, pairs, jobID)
	}

	windows := device.OS == models.OSWindows
	commands := []string{
		"rm -rf " + server.WorkDir,
		"mkdir " + server.WorkDir,
	}
	var copies, deletes, moves []string
	for _, p := range pairs {
		copies = append(copies, SCPCommand(device, Escape(p.Source, windows), server.WorkDir, false))
		deletes = append(deletes, "rm -rf "+Escape(p.Target, false))
		moves = append(moves, fmt.Sprintf("mv %s/%s %s", server.WorkDir, FolderName(p.Source), Escape(p.Target, false)))
	}
	commands = append(commands, copies...)
	commands = append(commands, deletes...)
	commands = append(commands, moves...)

	return t.runAll(ctx, jobID, commands)
}

func (t *Transfer) runAll(ctx context.Context, jobID string, commands []string) error {
	for _, cmd := range commands {
		if err := t.runner.Run(ctx, jobID, cmd, false); err != nil {
			return err
		}
	}
	return nil
}

// pushFTP stages each pair into the device work dir, then renames it over the target.
func (t *Transfer) pushFTP(ctx context.Context, device models.Device, pairs []models.SyncPair, jobID string) error {
	conn, err := openFTP(ctx, t.dial, device)
	if err != nil {
		return err
	}
	defer conn.Quit()

	for _, p := range pairs {
		t.record(ctx, jobID, "FTP: ensure "+device.WorkDir)
		if err := removeDirIfExists(conn, device.WorkDir); err != nil {
			return err
		}
		if err := conn.MakeDir(device.WorkDir); err != nil {
			return fmt.Errorf("mkdir %s: %w", device.WorkDir, err)
		}
		t.record(ctx, jobID, fmt.Sprintf("FTP: upload %s -> %s", p.Source, device.WorkDir))
		if err := uploadDir(t.fs, conn, p.Source, device.WorkDir); err != nil {
			return err
		}
		t.record(ctx, jobID, "FTP: remove "+p.Target)
		if err := removeDirIfExists(conn, p.Target); err != nil {
			return err
		}
		t.record(ctx, jobID, fmt.Sprintf("FTP: rename %s -> %s", device.WorkDir, p.Target))
		if err := conn.Rename(device.WorkDir, p.Target); err != nil {
			return fmt.Errorf("rename %s to %s: %w", device.WorkDir, p.Target, err)
		}
		t.logger.Info().Str("device", device.Name).Str("target", p.Target).Msg("pushed over ftp")
	}
	return nil
}

// pullFTP downloads each pair into the server work dir, then moves it over the target.
func (t *Transfer) pullFTP(ctx context.Context, device models.Device, server models.ServerConfig, pairs []models.SyncPair, jobID string) error {
	conn, err := openFTP(ctx, t.dial, device)
	if err != nil {
		return err
	}
	defer conn.Quit()

	for _, p := range pairs {
		// The work dir is consumed by the move, so it is rebuilt per pair.
		if err := t.runAll(ctx, jobID, []string{"rm -rf " + server.WorkDir, "mkdir " + server.WorkDir}); err != nil {
			return err
		}
		t.record(ctx, jobID, fmt.Sprintf("FTP: download %s -> %s", p.Source, server.WorkDir))
		if err := downloadDir(t.fs, conn, p.Source, server.WorkDir); err != nil {
			return err
		}
		if err := t.runAll(ctx, jobID, []string{
			"rm -rf " + p.Target,
			fmt.Sprintf("mv %s %s", server.WorkDir, p.Target),
		}); err != nil {
			return err
		}
		t.logger.Info().Str("device", device.Name).Str("target", path.Clean(p.Target)).Msg("pulled over ftp")
	}
	return nil
}

func (t *Transfer) record(ctx context.Context, jobID, line string) {
	if jobID == "" || t.journal == nil {
		return
	}
	if err := t.journal.Append(context.WithoutCancel(ctx), jobID, line); err != nil {
		t.logger.Warn().Err(err).Str("job", jobID).Msg("failed to append job log")
	}
}
