package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emusync/jobstore"
	"emusync/models"
)

type staticDevices struct {
	devices   map[string]models.Device
	server    models.ServerConfig
	serverErr error
}

func (s staticDevices) GetDevice(name string) (models.Device, bool) {
	d, ok := s.devices[name]
	return d, ok
}

func (s staticDevices) ServerConfig() (models.ServerConfig, error) {
	return s.server, s.serverErr
}

type fakeChecker struct {
	reachable bool
	calls     atomic.Int32
}

func (c *fakeChecker) ConnectionTest(context.Context, models.Device) bool {
	c.calls.Add(1)
	return c.reachable
}

type syncerFunc func(ctx context.Context, req models.DeviceSyncRequest, device models.Device, server models.ServerConfig, jobID string) ([]string, error)

func (f syncerFunc) RunDeviceSync(ctx context.Context, req models.DeviceSyncRequest, device models.Device, server models.ServerConfig, jobID string) ([]string, error) {
	return f(ctx, req, device, server, jobID)
}

type recordingPublisher struct {
	mu       sync.Mutex
	logs     []string
	statuses []models.SyncStatus
}

func (p *recordingPublisher) PublishLog(_ string, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, line)
}

func (p *recordingPublisher) PublishStatus(_ string, status models.SyncStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
}

type jobsFixture struct {
	manager    *JobManager
	store      *jobstore.MemoryStore
	checker    *fakeChecker
	transfer   *fakeTransfer
	publisher  *recordingPublisher
	dispatcher *Dispatcher
}

func newJobsFixture(t *testing.T, syncer DeviceSyncer) *jobsFixture {
	t.Helper()
	store := jobstore.NewMemoryStore(jobstore.DefaultTTL)
	publisher := &recordingPublisher{}
	journal := NewJobJournal(store, publisher)
	transfer := &fakeTransfer{failFor: map[string]error{}}
	if syncer == nil {
		syncer = NewSyncer(transfer, &fakeArchive{}, journal, zerolog.Nop())
	}
	dispatcher := NewDispatcher(2, 4, time.Minute, zerolog.Nop())
	t.Cleanup(func() { _ = dispatcher.Shutdown(context.Background()) })

	checker := &fakeChecker{reachable: true}
	devices := staticDevices{devices: map[string]models.Device{"Deck": deck}, server: server}
	manager := NewJobManager(store, devices, checker, syncer, dispatcher, publisher, zerolog.Nop())

	var n atomic.Int32
	manager.newID = func() string {
		return []string{"job-a", "job-b", "job-c", "job-d"}[n.Add(1)-1]
	}
	return &jobsFixture{manager: manager, store: store, checker: checker, transfer: transfer, publisher: publisher, dispatcher: dispatcher}
}

func (f *jobsFixture) awaitTerminal(t *testing.T, id string) models.DeviceSyncRecord {
	t.Helper()
	var rec models.DeviceSyncRecord
	require.Eventually(t, func() bool {
		got, err := f.manager.Get(context.Background(), id)
		if err != nil {
			return false
		}
		rec = got.DeviceSyncRecord
		return rec.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  models.DeviceSyncRequest
		msg  string
	}{
		{"missing device", models.DeviceSyncRequest{EmulatorActions: actions("cemu", "push")}, "Missing deviceName"},
		{"missing actions", models.DeviceSyncRequest{DeviceName: "Deck"}, "Missing emulatorActions (array of { emulator, action })"},
		{"empty actions", models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: []models.EmulatorActionEntry{}}, "emulatorActions must include at least one entry"},
		{
			"bad emulator",
			models.DeviceSyncRequest{DeviceName: "Alpha", EmulatorActions: actions("cemu", "push", "bad", "push")},
			"Invalid emulator 'bad'. Must be one of: cemu, azahar, dolphin, mupen, nethersx2, melonds, pcsx2, ppsspp, retroarch, rpcs3, ryujinx, switch, vita3k, xemu, xenia, yuzu",
		},
		{
			"bad action",
			models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "sync")},
			"Invalid action 'sync' for emulator 'cemu'. Must be one of: ignore, push, pull",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.EqualError(t, err, tt.msg)
		})
	}
	assert.NoError(t, Validate(models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "ignore")}))
}

func TestSubmitRejectsBeforeCreatingJob(t *testing.T) {
	f := newJobsFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.Submit(ctx, models.DeviceSyncRequest{DeviceName: "Alpha", EmulatorActions: actions("cemu", "push", "bad", "push")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.manager.Submit(ctx, models.DeviceSyncRequest{DeviceName: "Ghost", EmulatorActions: actions("cemu", "push")})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.EqualError(t, err, "Device 'Ghost' not found")

	assert.Zero(t, f.checker.calls.Load())
	_, err = f.store.Get(ctx, "job-a")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestSubmitWithoutServerConfig(t *testing.T) {
	f := newJobsFixture(t, nil)
	f.manager.devices = staticDevices{devices: map[string]models.Device{"Deck": deck}, serverErr: errors.New("incomplete")}

	_, err := f.manager.Submit(context.Background(), models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "push")})
	assert.ErrorIs(t, err, ErrServerConfig)
	assert.Zero(t, f.checker.calls.Load())
}

func TestSubmitUnreachableDevice(t *testing.T) {
	f := newJobsFixture(t, nil)
	f.checker.reachable = false
	req := models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "push")}

	for i := 0; i < 2; i++ {
		resp, err := f.manager.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, models.StatusFailed, resp.DeviceSyncRecord.Status)
		assert.Equal(t, []string{"Connection test failed"}, resp.DeviceSyncRecord.Output)

		_, err = f.store.Get(context.Background(), resp.ID)
		assert.ErrorIs(t, err, jobstore.ErrNotFound, "failed prechecks are not persisted")
	}
	assert.Empty(t, f.transfer.calls)
}

func TestSubmitPartialFailureCompletes(t *testing.T) {
	f := newJobsFixture(t, nil)
	f.transfer.failFor["/home/deck/cemu"] = errors.New("failure in command: scp: lost connection")

	resp, err := f.manager.Submit(context.Background(), models.DeviceSyncRequest{
		DeviceName:      "Deck",
		EmulatorActions: actions("cemu", "push", "xemu", "push"),
	})
	require.NoError(t, err)
	assert.Equal(t, "job-a", resp.ID)
	assert.Equal(t, models.StatusInProgress, resp.DeviceSyncRecord.Status)
	assert.Empty(t, resp.DeviceSyncRecord.Output)

	rec := f.awaitTerminal(t, "job-a")
	assert.Equal(t, models.StatusComplete, rec.Status)
	assert.Equal(t, []string{"push:cemu", "error:cemu:failure in command: scp: lost connection", "push:xemu"}, rec.Output)
	assert.Equal(t, "Deck", rec.DeviceSyncRequest.DeviceName)

	// The status event follows the store write.
	require.Eventually(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.statuses) == 1
	}, time.Second, 5*time.Millisecond)
	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	assert.Equal(t, models.StatusComplete, f.publisher.statuses[0])
	assert.Len(t, f.publisher.logs, 3)
}

func TestSubmitKeepsJournaledLines(t *testing.T) {
	var f *jobsFixture
	f = newJobsFixture(t, syncerFunc(func(ctx context.Context, _ models.DeviceSyncRequest, _ models.Device, _ models.ServerConfig, jobID string) ([]string, error) {
		journal := NewJobJournal(f.store, nil)
		assert.NoError(t, journal.Append(ctx, jobID, "CMD: rm -rf /srv/work"))
		assert.NoError(t, journal.Append(ctx, jobID, "EXIT: 0 (ok)"))
		return nil, errors.New("unexpected")
	}))

	_, err := f.manager.Submit(context.Background(), models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "pull")})
	require.NoError(t, err)

	rec := f.awaitTerminal(t, "job-a")
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, []string{"CMD: rm -rf /srv/work", "EXIT: 0 (ok)", "error:unexpected"}, rec.Output)
}

func TestSubmitPanicFailsJob(t *testing.T) {
	f := newJobsFixture(t, syncerFunc(func(context.Context, models.DeviceSyncRequest, models.Device, models.ServerConfig, string) ([]string, error) {
		panic("nil device")
	}))

	_, err := f.manager.Submit(context.Background(), models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "push")})
	require.NoError(t, err)

	rec := f.awaitTerminal(t, "job-a")
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, []string{"error:panic: nil device"}, rec.Output)
}

func TestSubmitWhenDispatcherClosed(t *testing.T) {
	f := newJobsFixture(t, nil)
	require.NoError(t, f.dispatcher.Shutdown(context.Background()))

	resp, err := f.manager.Submit(context.Background(), models.DeviceSyncRequest{DeviceName: "Deck", EmulatorActions: actions("cemu", "push")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, resp.DeviceSyncRecord.Status)
	assert.Equal(t, []string{"error:dispatcher closed"}, resp.DeviceSyncRecord.Output)

	stored, err := f.manager.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.DeviceSyncRecord.Status)
}

func TestGetUnknownJob(t *testing.T) {
	f := newJobsFixture(t, nil)
	_, err := f.manager.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}
