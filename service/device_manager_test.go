package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emusync/config"
	"emusync/models"
	"emusync/registry"
)

func newRegistry(t *testing.T) *registry.SQLRepository {
	t.Helper()
	db, err := config.InitDatabase(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return registry.NewSQLRepository(db, zerolog.Nop())
}

func TestDeviceManagerReload(t *testing.T) {
	repo := newRegistry(t)
	ctx := context.Background()

	sw := models.Device{Name: "Switch", IP: "10.0.0.20", Port: 5000, User: "anon", OS: "nx", SwitchSave: "/saves", WorkDir: "/work"}
	noIP := models.Device{Name: "Broken", Port: 22, User: "x", OS: "linux"}
	require.NoError(t, repo.CreateDevice(ctx, sw))
	require.NoError(t, repo.CreateDevice(ctx, noIP))
	require.NoError(t, repo.CreateDevice(ctx, deck))

	dm := NewDeviceManager(repo, zerolog.Nop())
	require.NoError(t, dm.Reload(ctx))

	assert.Equal(t, []models.SimpleDevice{
		{Name: "Deck", OS: models.OSLinux, EmulatorsEnabled: []models.Emulator{models.EmulatorCemu, models.EmulatorXemu}},
		{Name: "Switch", OS: models.OSNX, EmulatorsEnabled: []models.Emulator{models.EmulatorSwitch}},
	}, dm.GetAllDevices())

	got, ok := dm.GetDevice("Switch")
	require.True(t, ok)
	assert.Equal(t, models.SyncFTP, got.SyncType)

	_, ok = dm.GetDevice("Broken")
	assert.False(t, ok)

	_, err := dm.ServerConfig()
	assert.ErrorIs(t, err, registry.ErrServerNotFound)
}

func TestDeviceManagerServerConfig(t *testing.T) {
	repo := newRegistry(t)
	ctx := context.Background()
	dm := NewDeviceManager(repo, zerolog.Nop())

	require.NoError(t, repo.PutServer(ctx, server))
	require.NoError(t, dm.Reload(ctx))
	_, err := dm.ServerConfig()
	assert.ErrorIs(t, err, registry.ErrIncompleteServer)

	full := models.ServerConfig{WorkDir: "/srv/work"}
	for key := range full.Paths() {
		setServerPath(&full, key, "/srv/"+key)
	}
	require.NoError(t, repo.PutServer(ctx, full))
	require.NoError(t, dm.Reload(ctx))
	got, err := dm.ServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/xemuSave", got.XemuSave)
}

// setServerPath fills one ServerConfig field by its JSON name.
func setServerPath(s *models.ServerConfig, key, value string) {
	fields := map[string]*string{
		"cemuSave": &s.CemuSave, "azahar": &s.Azahar, "dolphinGC": &s.DolphinGC, "dolphinWii": &s.DolphinWii,
		"nethersx2Save": &s.Nethersx2Save, "mupenFzSave": &s.MupenFzSave, "ppssppSave": &s.PpssppSave,
		"ppssppState": &s.PpssppState, "retroarchSave": &s.RetroarchSave, "retroarchState": &s.RetroarchState,
		"retroarchRgState": &s.RetroarchRgState, "rpcs3Save": &s.Rpcs3Save, "ryujinxSave": &s.RyujinxSave,
		"switchSave": &s.SwitchSave, "melonds": &s.Melonds, "vita3kSave": &s.Vita3kSave, "xemuSave": &s.XemuSave,
		"xeniaSave": &s.XeniaSave, "yuzuSave": &s.YuzuSave,
	}
	*fields[key] = value
}
