package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emusync/models"
)

func TestNormalizeDevice(t *testing.T) {
	tests := []struct {
		name     string
		os       models.OS
		wantOS   models.OS
		wantSync models.SyncType
	}{
		{"android", "android", models.OSAndroid, models.SyncSSH},
		{"switch speaks ftp", "nx", models.OSNX, models.SyncFTP},
		{"windows", "windows", models.OSWindows, models.SyncSSH},
		{"muos", "muos", models.OSMuOS, models.SyncSSH},
		{"unknown falls back to linux", "steamos", models.OSLinux, models.SyncSSH},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDevice("Deck")
			d.OS = tt.os
			d.SyncType = models.SyncFTP

			got, err := NormalizeDevice(d)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOS, got.OS)
			assert.Equal(t, tt.wantSync, got.SyncType)
		})
	}
}

func TestVerifyDevicesSkipsAndSorts(t *testing.T) {
	noIP := sampleDevice("Broken")
	noIP.IP = ""
	noOS := sampleDevice("NoOS")
	noOS.OS = ""

	got := VerifyDevices([]models.Device{sampleDevice("Zed"), noIP, sampleDevice("Alpha"), noOS}, zerolog.Nop())
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, "Zed", got[1].Name)
}

func TestValidateNewDevice(t *testing.T) {
	assert.NoError(t, ValidateNewDevice(sampleDevice("Deck")))

	d := sampleDevice("Deck")
	d.Password = ""
	d.WorkDir = ""
	err := ValidateNewDevice(d)
	assert.ErrorIs(t, err, ErrInvalidDevice)
	assert.EqualError(t, err, "invalid device: missing password, workDir")

	var missing *MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"password", "workDir"}, missing.Fields)
}

func fullServer() models.ServerConfig {
	return models.ServerConfig{
		CemuSave: "/srv/cemu", Azahar: "/srv/azahar", DolphinGC: "/srv/dolphin/GC", DolphinWii: "/srv/dolphin/Wii",
		Nethersx2Save: "/srv/ps2", MupenFzSave: "/srv/mupen", PpssppSave: "/srv/psp/save", PpssppState: "/srv/psp/state",
		RetroarchSave: "/srv/ra/save", RetroarchState: "/srv/ra/state", RetroarchRgState: "/srv/ra/rgstate",
		Rpcs3Save: "/srv/rpcs3", RyujinxSave: "/srv/ryujinx", SwitchSave: "/srv/switch", Melonds: "/srv/melonds",
		Vita3kSave: "/srv/vita3k", XemuSave: "/srv/xemu", XeniaSave: "/srv/xenia", YuzuSave: "/srv/yuzu",
		WorkDir: "/srv/work",
	}
}

func TestVerifyServer(t *testing.T) {
	assert.NoError(t, VerifyServer(fullServer()))

	s := fullServer()
	s.XemuSave = ""
	s.WorkDir = ""
	err := VerifyServer(s)
	assert.ErrorIs(t, err, ErrIncompleteServer)
	assert.EqualError(t, err, "incomplete server config: missing workDir, xemuSave")
}

func TestCheckServer(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := fullServer()
	for _, p := range s.Paths() {
		require.NoError(t, fs.MkdirAll(p, 0o755))
	}

	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(bin string) (string, error) { return "/usr/bin/" + bin, nil }

	results := CheckServer(fs, s)
	assert.True(t, Healthy(results))
	assert.Len(t, results, len(s.Paths())+len(RequiredBinaries))

	require.NoError(t, fs.RemoveAll("/srv/xenia"))
	lookPath = func(bin string) (string, error) {
		if bin == "zip" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + bin, nil
	}

	results = CheckServer(fs, s)
	assert.False(t, Healthy(results))
	var failed []string
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.Name)
		}
	}
	assert.Equal(t, []string{"xeniaSave", "bin:zip"}, failed)
}

func TestImportSeed(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateDevice(ctx, sampleDevice("Deck")))

	seed, err := ParseSeed([]byte(`{
		"devices": [
			{"name": "Deck", "ip": "10.0.0.10", "port": 22, "user": "deck", "password": "pw", "os": "linux", "workDir": "/w"},
			{"name": "Switch", "ip": "10.0.0.20", "port": 5000, "user": "anon", "password": "", "os": "nx", "switchSave": "/saves", "workDir": "/work"},
			{"ip": "10.0.0.30"}
		],
		"server": {"cemuSave": "/srv/cemu", "workDir": "/srv/work"}
	}`))
	require.NoError(t, err)

	stats, err := Import(ctx, seed, repo, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Created: 1, Updated: 1, Skipped: 1, Server: true}, stats)

	deck, err := repo.GetDevice(ctx, "Deck")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", deck.IP)

	sw, err := repo.GetDevice(ctx, "Switch")
	require.NoError(t, err)
	assert.Equal(t, "/saves", sw.SwitchSave)

	server, err := repo.GetServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/srv/cemu", server.CemuSave)
}

func TestImportYAMLFile(t *testing.T) {
	repo := newTestRepository(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/emusync/db.yaml", []byte(`
devices:
  - name: Pixel
    ip: 10.0.0.5
    port: 8022
    user: u0
    password: pw
    os: android
    dolphinDroidDump: /sdcard/dolphin
    workDir: /sdcard/work
`), 0o644))

	stats, err := ImportFile(context.Background(), fs, "/etc/emusync/db.yaml", repo, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.False(t, stats.Server)

	_, err = ImportFile(context.Background(), fs, "/missing.json", repo, zerolog.Nop())
	assert.Error(t, err)
}
