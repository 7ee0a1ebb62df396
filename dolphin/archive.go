// Package dolphin syncs Dolphin saves on Android devices, where the app only
// exposes them through a zipped user-data backup instead of plain folders.
package dolphin

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"emusync/models"
	"emusync/remote"
)

const (
	backupName = "dolphin-emu.zip"
	exportName = "dolphin-export.zip"
)

// Handler moves the GC and Wii folders in and out of the Android backup archive.
// Extraction happens on the server, inside the server work dir.
type Handler struct {
	runner remote.Runner
	fs     afero.Fs
	limits Limits
	logger zerolog.Logger
}

func NewHandler(runner remote.Runner, fs afero.Fs, limits Limits, logger zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		fs:     fs,
		limits: limits,
		logger: logger.With().Str("component", "dolphin").Logger(),
	}
}

type layout struct {
	workDir      string
	extractDir   string
	baseZip      string
	fixedZip     string
	exportZip    string
	remoteBackup string
	remoteExport string
}

func newLayout(device models.Device, server models.ServerConfig) layout {
	base := path.Join(server.WorkDir, backupName)
	return layout{
		workDir:      server.WorkDir,
		extractDir:   path.Join(server.WorkDir, "dolphin_emu"),
		baseZip:      base,
		fixedZip:     base + ".fixed",
		exportZip:    path.Join(server.WorkDir, exportName),
		remoteBackup: path.Join(device.DolphinDroidDump, backupName),
		remoteExport: path.Join(device.DolphinDroidDump, exportName),
	}
}

func quote(p string) string {
	return `"` + p + `"`
}

// Pull copies the archived GC and Wii folders over the server's Dolphin paths.
// A device without a backup archive, or without a dump folder configured,
// has nothing to pull and is not an error.
func (h *Handler) Pull(ctx context.Context, device models.Device, server models.ServerConfig, jobID string) error {
	if device.DolphinDroidDump == "" {
		h.logger.Info().Str("device", device.Name).Msg("no dolphin dump folder configured, skipping pull")
		return nil
	}
	l := newLayout(device, server)
	defer h.cleanup(ctx, l, jobID)

	if err := h.prepare(ctx, l, jobID); err != nil {
		return err
	}
	if err := h.checkRemote(ctx, device, l, jobID); err != nil {
		h.logger.Info().Str("device", device.Name).Err(err).Msg("no dolphin backup on device, skipping pull")
		return nil
	}
	if err := h.run(ctx, jobID, remote.SCPCommand(device, l.remoteBackup, l.baseZip, false)); err != nil {
		return err
	}

	root, err := h.extractWithRepair(ctx, l, jobID)
	if err != nil {
		return err
	}

	return h.runAll(ctx, jobID,
		"rm -rf "+quote(server.DolphinGC),
		"rm -rf "+quote(server.DolphinWii),
		fmt.Sprintf("mv %s %s", quote(path.Join(root, "GC")), quote(server.DolphinGC)),
		fmt.Sprintf("mv %s %s", quote(path.Join(root, "Wii")), quote(server.DolphinWii)),
	)
}

// Push replaces the GC and Wii folders inside the device backup with the
// server's copies and uploads the result as the export archive. Without a dump
// folder configured there is nowhere to upload to and nothing runs.
func (h *Handler) Push(ctx context.Context, device models.Device, server models.ServerConfig, jobID string) error {
	if device.DolphinDroidDump == "" {
		h.logger.Info().Str("device", device.Name).Msg("no dolphin dump folder configured, skipping push")
		return nil
	}
	l := newLayout(device, server)
	defer h.cleanup(ctx, l, jobID)

	if err := h.prepare(ctx, l, jobID); err != nil {
		return err
	}
	if err := h.checkRemote(ctx, device, l, jobID); err != nil {
		return err
	}
	if err := h.run(ctx, jobID, remote.SCPCommand(device, l.remoteBackup, l.baseZip, false)); err != nil {
		return err
	}

	root, err := h.extractWithRepair(ctx, l, jobID)
	if err != nil {
		return err
	}

	gc, wii := path.Join(root, "GC"), path.Join(root, "Wii")
	return h.runAll(ctx, jobID,
		fmt.Sprintf("rm -rf %s %s", quote(gc), quote(wii)),
		fmt.Sprintf("cp -r %s %s", quote(server.DolphinGC), quote(gc)),
		fmt.Sprintf("cp -r %s %s", quote(server.DolphinWii), quote(wii)),
		fmt.Sprintf("cd %s && zip -r %s .", quote(l.extractDir), quote(l.exportZip)),
		remote.SSHCommand(device, "rm -f "+quote(l.remoteExport)),
		remote.SCPCommand(device, l.exportZip, l.remoteExport, true),
	)
}

func (h *Handler) prepare(ctx context.Context, l layout, jobID string) error {
	return h.runAll(ctx, jobID,
		"mkdir -p "+quote(l.workDir),
		"rm -rf "+quote(l.extractDir),
		"rm -f "+quote(l.baseZip),
		"rm -f "+quote(l.fixedZip),
		"rm -f "+quote(l.exportZip),
	)
}

func (h *Handler) checkRemote(ctx context.Context, device models.Device, l layout, jobID string) error {
	check := fmt.Sprintf(`if [ ! -f %s ]; then echo "missing dolphin zip" >&2; exit 1; fi`, quote(l.remoteBackup))
	return h.run(ctx, jobID, remote.SSHCommand(device, check))
}

// extractWithRepair extracts the backup and locates its data. On failure the
// archive is repaired once with zip -FF and the repaired copy is tried instead.
func (h *Handler) extractWithRepair(ctx context.Context, l layout, jobID string) (string, error) {
	root, err := h.extract(ctx, l, l.baseZip, jobID)
	if err == nil {
		return root, nil
	}
	h.logger.Warn().Err(err).Str("zip", l.baseZip).Msg("extraction failed, repairing archive")

	if err := h.run(ctx, jobID, fmt.Sprintf("zip -FF %s --out %s", quote(l.baseZip), quote(l.fixedZip))); err != nil {
		return "", fmt.Errorf("repair %s: %w", l.baseZip, err)
	}
	root, err = h.extract(ctx, l, l.fixedZip, jobID)
	if err != nil {
		return "", fmt.Errorf("repaired archive: %w", err)
	}
	return root, nil
}

func (h *Handler) extract(ctx context.Context, l layout, zip, jobID string) (string, error) {
	if err := h.runAll(ctx, jobID,
		"rm -rf "+quote(l.extractDir),
		"mkdir -p "+quote(l.extractDir),
		fmt.Sprintf("unzip -o %s -d %s", quote(zip), quote(l.extractDir)),
	); err != nil {
		return "", err
	}
	return Locate(h.fs, l.extractDir, h.limits)
}

// cleanup removes every scratch artifact. It outlives a cancelled job context
// and only logs failures.
func (h *Handler) cleanup(ctx context.Context, l layout, jobID string) {
	ctx = context.WithoutCancel(ctx)
	for _, cmd := range []string{
		"rm -rf " + quote(l.extractDir),
		"rm -f " + quote(l.baseZip),
		"rm -f " + quote(l.fixedZip),
		"rm -f " + quote(l.exportZip),
	} {
		if err := h.runner.Run(ctx, jobID, cmd, false); err != nil {
			h.logger.Warn().Err(err).Str("cmd", cmd).Msg("dolphin cleanup failed")
		}
	}
}

func (h *Handler) run(ctx context.Context, jobID, cmd string) error {
	return h.runner.Run(ctx, jobID, cmd, false)
}

func (h *Handler) runAll(ctx context.Context, jobID string, commands ...string) error {
	for _, cmd := range commands {
		if err := h.run(ctx, jobID, cmd); err != nil {
			return err
		}
	}
	return nil
}
