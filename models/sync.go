package models

// Emulator identifies a supported emulator.
type Emulator string

const (
	EmulatorCemu      Emulator = "cemu"
	EmulatorAzahar    Emulator = "azahar"
	EmulatorDolphin   Emulator = "dolphin"
	EmulatorMupen     Emulator = "mupen"
	EmulatorNethersx2 Emulator = "nethersx2"
	EmulatorMelonds   Emulator = "melonds"
	EmulatorPcsx2     Emulator = "pcsx2"
	EmulatorPpsspp    Emulator = "ppsspp"
	EmulatorRetroarch Emulator = "retroarch"
	EmulatorRpcs3     Emulator = "rpcs3"
	EmulatorRyujinx   Emulator = "ryujinx"
	EmulatorSwitch    Emulator = "switch"
	EmulatorVita3k    Emulator = "vita3k"
	EmulatorXemu      Emulator = "xemu"
	EmulatorXenia     Emulator = "xenia"
	EmulatorYuzu      Emulator = "yuzu"
)

// Emulators lists every supported emulator in declaration order.
var Emulators = []Emulator{
	EmulatorCemu, EmulatorAzahar, EmulatorDolphin, EmulatorMupen,
	EmulatorNethersx2, EmulatorMelonds, EmulatorPcsx2, EmulatorPpsspp,
	EmulatorRetroarch, EmulatorRpcs3, EmulatorRyujinx, EmulatorSwitch,
	EmulatorVita3k, EmulatorXemu, EmulatorXenia, EmulatorYuzu,
}

func (e Emulator) Valid() bool {
	for _, known := range Emulators {
		if e == known {
			return true
		}
	}
	return false
}

// SyncAction is what to do with one emulator's saves.
type SyncAction string

const (
	ActionIgnore SyncAction = "ignore"
	ActionPush   SyncAction = "push"
	ActionPull   SyncAction = "pull"
)

var SyncActions = []SyncAction{ActionIgnore, ActionPush, ActionPull}

func (a SyncAction) Valid() bool {
	return a == ActionIgnore || a == ActionPush || a == ActionPull
}

// SyncPair is one directory transfer. Push: server -> device, pull: device -> server.
type SyncPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type EmulatorActionEntry struct {
	Emulator Emulator   `json:"emulator"`
	Action   SyncAction `json:"action"`
}

type DeviceSyncRequest struct {
	DeviceName      string                `json:"deviceName"`
	EmulatorActions []EmulatorActionEntry `json:"emulatorActions"`
}

// SyncStatus is the job state: IN_PROGRESS -> COMPLETE | FAILED.
type SyncStatus string

const (
	StatusInProgress SyncStatus = "IN_PROGRESS"
	StatusFailed     SyncStatus = "FAILED"
	StatusComplete   SyncStatus = "COMPLETE"
)

// Terminal reports whether no further transitions are allowed.
func (s SyncStatus) Terminal() bool {
	return s == StatusFailed || s == StatusComplete
}

// DeviceSyncRecord is the persisted job state. Output is append-only.
type DeviceSyncRecord struct {
	DeviceSyncRequest DeviceSyncRequest `json:"deviceSyncRequest"`
	Status            SyncStatus        `json:"status"`
	Output            []string          `json:"output"`
}

type DeviceSyncResponse struct {
	ID               string           `json:"id"`
	DeviceSyncRecord DeviceSyncRecord `json:"deviceSyncRecord"`
}
