package models

// OS is the operating system family of a device.
type OS string

const (
	OSAndroid OS = "android"
	OSLinux   OS = "linux"
	OSMuOS    OS = "muos"
	OSNX      OS = "nx"
	OSWindows OS = "windows"
)

// ParseOS maps a raw registry value to an OS. Anything unrecognised is treated as linux.
func ParseOS(raw string) OS {
	switch OS(raw) {
	case OSMuOS, OSAndroid, OSNX, OSWindows:
		return OS(raw)
	}
	return OSLinux
}

// SyncType is the transport used to reach a device.
type SyncType string

const (
	SyncSSH SyncType = "ssh"
	SyncFTP SyncType = "ftp"
)

// SyncTypeForOS derives the transport from the OS: nx (homebrew Switch) only speaks FTP.
func SyncTypeForOS(os OS) SyncType {
	if os == OSNX {
		return SyncFTP
	}
	return SyncSSH
}

// Device is a remote machine holding emulator saves.
// Empty path fields mean the emulator is not configured on that device.
type Device struct {
	Name     string   `json:"name" yaml:"name"`
	IP       string   `json:"ip" yaml:"ip"`
	Port     int      `json:"port" yaml:"port"`
	User     string   `json:"user" yaml:"user"`
	Password string   `json:"password" yaml:"password"`
	OS       OS       `json:"os" yaml:"os"`
	SyncType SyncType `json:"syncType,omitempty" yaml:"syncType,omitempty"`

	CemuSave           string `json:"cemuSave,omitempty" yaml:"cemuSave,omitempty"`
	Azahar             string `json:"azahar,omitempty" yaml:"azahar,omitempty"`
	DolphinDroidDump   string `json:"dolphinDroidDump,omitempty" yaml:"dolphinDroidDump,omitempty"`
	DolphinGC          string `json:"dolphinGC,omitempty" yaml:"dolphinGC,omitempty"`
	DolphinWii         string `json:"dolphinWii,omitempty" yaml:"dolphinWii,omitempty"`
	MupenFzSave        string `json:"mupenFzSave,omitempty" yaml:"mupenFzSave,omitempty"`
	Nethersx2Save      string `json:"nethersx2Save,omitempty" yaml:"nethersx2Save,omitempty"`
	Nethersx2DroidDump string `json:"nethersx2DroidDump,omitempty" yaml:"nethersx2DroidDump,omitempty"`
	Melonds            string `json:"melonds,omitempty" yaml:"melonds,omitempty"`
	Pcsx2Save          string `json:"pcsx2Save,omitempty" yaml:"pcsx2Save,omitempty"`
	PpssppSave         string `json:"ppssppSave,omitempty" yaml:"ppssppSave,omitempty"`
	PpssppState        string `json:"ppssppState,omitempty" yaml:"ppssppState,omitempty"`
	RetroarchSave      string `json:"retroarchSave,omitempty" yaml:"retroarchSave,omitempty"`
	RetroarchState     string `json:"retroarchState,omitempty" yaml:"retroarchState,omitempty"`
	Rpcs3Save          string `json:"rpcs3Save,omitempty" yaml:"rpcs3Save,omitempty"`
	RyujinxSave        string `json:"ryujinxSave,omitempty" yaml:"ryujinxSave,omitempty"`
	SwitchSave         string `json:"switchSave,omitempty" yaml:"switchSave,omitempty"`
	Vita3kSave         string `json:"vita3kSave,omitempty" yaml:"vita3kSave,omitempty"`
	XemuSave           string `json:"xemuSave,omitempty" yaml:"xemuSave,omitempty"`
	XeniaSave          string `json:"xeniaSave,omitempty" yaml:"xeniaSave,omitempty"`
	YuzuDroid          string `json:"yuzuDroid,omitempty" yaml:"yuzuDroid,omitempty"`
	YuzuDroidDump      string `json:"yuzuDroidDump,omitempty" yaml:"yuzuDroidDump,omitempty"`
	YuzuSave           string `json:"yuzuSave,omitempty" yaml:"yuzuSave,omitempty"`

	// WorkDir is the device-side scratch directory used for staged swaps.
	WorkDir string `json:"workDir" yaml:"workDir"`
}

// ServerConfig holds the server-side save directories, one per emulator.
type ServerConfig struct {
	CemuSave         string `json:"cemuSave" yaml:"cemuSave"`
	Azahar           string `json:"azahar" yaml:"azahar"`
	DolphinGC        string `json:"dolphinGC" yaml:"dolphinGC"`
	DolphinWii       string `json:"dolphinWii" yaml:"dolphinWii"`
	Nethersx2Save    string `json:"nethersx2Save" yaml:"nethersx2Save"`
	MupenFzSave      string `json:"mupenFzSave" yaml:"mupenFzSave"`
	PpssppSave       string `json:"ppssppSave" yaml:"ppssppSave"`
	PpssppState      string `json:"ppssppState" yaml:"ppssppState"`
	RetroarchSave    string `json:"retroarchSave" yaml:"retroarchSave"`
	RetroarchState   string `json:"retroarchState" yaml:"retroarchState"`
	RetroarchRgState string `json:"retroarchRgState" yaml:"retroarchRgState"`
	Rpcs3Save        string `json:"rpcs3Save" yaml:"rpcs3Save"`
	RyujinxSave      string `json:"ryujinxSave" yaml:"ryujinxSave"`
	SwitchSave       string `json:"switchSave" yaml:"switchSave"`
	Melonds          string `json:"melonds" yaml:"melonds"`
	Vita3kSave       string `json:"vita3kSave" yaml:"vita3kSave"`
	XemuSave         string `json:"xemuSave" yaml:"xemuSave"`
	XeniaSave        string `json:"xeniaSave" yaml:"xeniaSave"`
	YuzuSave         string `json:"yuzuSave" yaml:"yuzuSave"`
	WorkDir          string `json:"workDir" yaml:"workDir"`
}

// Paths returns every server save directory (WorkDir excluded) keyed by field name.
func (s ServerConfig) Paths() map[string]string {
	return map[string]string{
		"cemuSave":         s.CemuSave,
		"azahar":           s.Azahar,
		"dolphinGC":        s.DolphinGC,
		"dolphinWii":       s.DolphinWii,
		"nethersx2Save":    s.Nethersx2Save,
		"mupenFzSave":      s.MupenFzSave,
		"ppssppSave":       s.PpssppSave,
		"ppssppState":      s.PpssppState,
		"retroarchSave":    s.RetroarchSave,
		"retroarchState":   s.RetroarchState,
		"retroarchRgState": s.RetroarchRgState,
		"rpcs3Save":        s.Rpcs3Save,
		"ryujinxSave":      s.RyujinxSave,
		"switchSave":       s.SwitchSave,
		"melonds":          s.Melonds,
		"vita3kSave":       s.Vita3kSave,
		"xemuSave":         s.XemuSave,
		"xeniaSave":        s.XeniaSave,
		"yuzuSave":         s.YuzuSave,
	}
}

// SimpleDevice is the public view of a device used by the device picker.
type SimpleDevice struct {
	Name             string     `json:"name"`
	OS               OS         `json:"os"`
	EmulatorsEnabled []Emulator `json:"emulatorsEnabled"`
}
