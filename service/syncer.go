package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"emusync/emulators"
	"emusync/models"
	"emusync/remote"
)

// PairTransfer moves resolved directory pairs for one emulator.
type PairTransfer interface {
	PushPairs(ctx context.Context, device models.Device, pairs []models.SyncPair, jobID string) error
	PullPairs(ctx context.Context, device models.Device, server models.ServerConfig, pairs []models.SyncPair, jobID string) error
}

// ArchiveHandler syncs an emulator whose saves live inside a device-side archive.
type ArchiveHandler interface {
	Push(ctx context.Context, device models.Device, server models.ServerConfig, jobID string) error
	Pull(ctx context.Context, device models.Device, server models.ServerConfig, jobID string) error
}

// Syncer runs the emulator actions of one request, in order, against one device.
type Syncer struct {
	transfer PairTransfer
	archive  ArchiveHandler
	journal  remote.Journal
	logger   zerolog.Logger
}

func NewSyncer(transfer PairTransfer, archive ArchiveHandler, journal remote.Journal, logger zerolog.Logger) *Syncer {
	return &Syncer{
		transfer: transfer,
		archive:  archive,
		journal:  journal,
		logger:   logger.With().Str("component", "syncer").Logger(),
	}
}

// RunDeviceSync returns one summary line per action, plus an error line for
// each action that failed. Failed actions do not stop the ones after them.
// Lines are journaled as they happen. The only error returned is ctx's, when
// the job is cancelled or times out between actions.
func (s *Syncer) RunDeviceSync(ctx context.Context, req models.DeviceSyncRequest, device models.Device, server models.ServerConfig, jobID string) ([]string, error) {
	logs := make([]string, 0, len(req.EmulatorActions))
	log := func(line string) {
		logs = append(logs, line)
		s.record(ctx, jobID, line)
	}

	for _, entry := range req.EmulatorActions {
		if err := ctx.Err(); err != nil {
			return logs, err
		}

		var err error
		switch entry.Action {
		case models.ActionPush:
			log("push:" + string(entry.Emulator))
			err = s.push(ctx, device, server, entry.Emulator, jobID)
		case models.ActionPull:
			log("pull:" + string(entry.Emulator))
			err = s.pull(ctx, device, server, entry.Emulator, jobID)
		default:
			log("ignore:" + string(entry.Emulator))
		}

		if err != nil {
			s.logger.Error().Err(err).Str("device", device.Name).Str("emulator", string(entry.Emulator)).
				Str("action", string(entry.Action)).Msg("emulator sync failed")
			log(fmt.Sprintf("error:%s:%s", entry.Emulator, err))
		}
	}
	return logs, nil
}

func usesArchive(device models.Device, emulator models.Emulator) bool {
	return device.OS == models.OSAndroid && emulator == models.EmulatorDolphin
}

func (s *Syncer) push(ctx context.Context, device models.Device, server models.ServerConfig, emulator models.Emulator, jobID string) error {
	if usesArchive(device, emulator) {
		return s.archive.Push(ctx, device, server, jobID)
	}
	pairs, err := emulators.Resolve(device, server, emulator, true)
	if err != nil {
		return err
	}
	return s.transfer.PushPairs(ctx, device, pairs, jobID)
}

func (s *Syncer) pull(ctx context.Context, device models.Device, server models.ServerConfig, emulator models.Emulator, jobID string) error {
	if usesArchive(device, emulator) {
		return s.archive.Pull(ctx, device, server, jobID)
	}
	pairs, err := emulators.Resolve(device, server, emulator, false)
	if err != nil {
		return err
	}
	return s.transfer.PullPairs(ctx, device, server, pairs, jobID)
}

func (s *Syncer) record(ctx context.Context, jobID, line string) {
	if jobID == "" || s.journal == nil {
		return
	}
	if err := s.journal.Append(context.WithoutCancel(ctx), jobID, line); err != nil {
		s.logger.Warn().Err(err).Str("job", jobID).Msg("failed to append job log")
	}
}
