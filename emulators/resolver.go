// Package emulators maps a device, the server layout and an emulator to the
// directory pairs that have to be transferred. Everything here is pure.
package emulators

import (
	"errors"
	"fmt"
	"path"

	"emusync/models"
)

var ErrUnknownEmulator = errors.New("unknown emulator")

// ResolveFunc produces the sync pairs for one emulator.
type ResolveFunc func(device models.Device, server models.ServerConfig, push bool) []models.SyncPair

var resolvers = map[models.Emulator]ResolveFunc{
	models.EmulatorCemu:      single(func(d models.Device) string { return d.CemuSave }, func(s models.ServerConfig) string { return s.CemuSave }),
	models.EmulatorAzahar:    resolveAzahar,
	models.EmulatorDolphin:   resolveDolphin,
	models.EmulatorMupen:     single(func(d models.Device) string { return d.MupenFzSave }, func(s models.ServerConfig) string { return s.MupenFzSave }),
	models.EmulatorMelonds:   single(func(d models.Device) string { return d.Melonds }, func(s models.ServerConfig) string { return s.Melonds }),
	models.EmulatorNethersx2: resolveNethersx2,
	models.EmulatorPcsx2:     resolvePcsx2,
	models.EmulatorPpsspp:    resolvePpsspp,
	models.EmulatorRetroarch: resolveRetroarch,
	models.EmulatorRpcs3:     single(func(d models.Device) string { return d.Rpcs3Save }, func(s models.ServerConfig) string { return s.Rpcs3Save }),
	models.EmulatorRyujinx:   single(func(d models.Device) string { return d.RyujinxSave }, func(s models.ServerConfig) string { return s.RyujinxSave }),
	models.EmulatorSwitch:    single(func(d models.Device) string { return d.SwitchSave }, func(s models.ServerConfig) string { return s.SwitchSave }),
	models.EmulatorVita3k:    single(func(d models.Device) string { return d.Vita3kSave }, func(s models.ServerConfig) string { return s.Vita3kSave }),
	models.EmulatorXemu:      single(func(d models.Device) string { return d.XemuSave }, func(s models.ServerConfig) string { return s.XemuSave }),
	models.EmulatorXenia:     single(func(d models.Device) string { return d.XeniaSave }, func(s models.ServerConfig) string { return s.XeniaSave }),
	models.EmulatorYuzu:      resolveYuzu,
}

// Resolve returns the ordered sync pairs for emulator on device. A device
// without the required path fields yields no pairs; only an emulator that
// has no resolver is an error.
func Resolve(device models.Device, server models.ServerConfig, emulator models.Emulator, push bool) ([]models.SyncPair, error) {
	fn, ok := resolvers[emulator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmulator, emulator)
	}
	return fn(device, server, push), nil
}

// pair orients a server/device path couple. This is the only place push
// direction is interpreted.
func pair(serverPath, devicePath string, push bool) models.SyncPair {
	if push {
		return models.SyncPair{Source: serverPath, Target: devicePath}
	}
	return models.SyncPair{Source: devicePath, Target: serverPath}
}

func single(devicePath func(models.Device) string, serverPath func(models.ServerConfig) string) ResolveFunc {
	return func(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
		p := devicePath(device)
		if p == "" {
			return nil
		}
		return []models.SyncPair{pair(serverPath(server), p, push)}
	}
}

var azaharFolders = []string{"nand", "sdmc", "sysdata"}

func resolveAzahar(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	if device.Azahar == "" {
		return nil
	}
	pairs := make([]models.SyncPair, 0, len(azaharFolders))
	for _, folder := range azaharFolders {
		pairs = append(pairs, pair(path.Join(server.Azahar, folder), path.Join(device.Azahar, folder), push))
	}
	return pairs
}

// Android Dolphin only exposes an archive; that case is handled by the dolphin package.
func resolveDolphin(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	if device.OS == models.OSAndroid {
		return nil
	}
	var pairs []models.SyncPair
	if device.DolphinGC != "" {
		pairs = append(pairs, pair(server.DolphinGC, device.DolphinGC, push))
	}
	if device.DolphinWii != "" {
		pairs = append(pairs, pair(server.DolphinWii, device.DolphinWii, push))
	}
	return pairs
}

// memcardsPath accepts either the memcards folder itself or its parent.
func memcardsPath(base string) string {
	if path.Base(base) == "memcards" {
		return base
	}
	return path.Join(base, "memcards")
}

func resolveNethersx2(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	if device.Nethersx2Save == "" {
		return nil
	}
	return []models.SyncPair{pair(memcardsPath(server.Nethersx2Save), memcardsPath(device.Nethersx2Save), push)}
}

// PCSX2 shares memory cards with NetherSX2 on the server.
func resolvePcsx2(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	if device.Pcsx2Save == "" {
		return nil
	}
	return []models.SyncPair{pair(server.Nethersx2Save, device.Pcsx2Save, push)}
}

func resolvePpsspp(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	var pairs []models.SyncPair
	if device.PpssppSave != "" {
		pairs = append(pairs, pair(server.PpssppSave, device.PpssppSave, push))
	}
	if device.PpssppState != "" {
		pairs = append(pairs, pair(server.PpssppState, device.PpssppState, push))
	}
	return pairs
}

func resolveRetroarch(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	var pairs []models.SyncPair
	if device.RetroarchSave != "" {
		pairs = append(pairs, pair(server.RetroarchSave, device.RetroarchSave, push))
	}
	if device.RetroarchState != "" {
		statePath := server.RetroarchState
		if device.OS == models.OSMuOS {
			statePath = server.RetroarchRgState
		}
		pairs = append(pairs, pair(statePath, device.RetroarchState, push))
	}
	return pairs
}

// On Android, yuzu forks read saves from one location and import from a dump folder.
func resolveYuzu(device models.Device, server models.ServerConfig, push bool) []models.SyncPair {
	if device.OS != models.OSAndroid {
		if device.YuzuSave == "" {
			return nil
		}
		return []models.SyncPair{pair(server.YuzuSave, device.YuzuSave, push)}
	}
	if push {
		if device.YuzuDroidDump == "" {
			return nil
		}
		return []models.SyncPair{{Source: server.YuzuSave, Target: device.YuzuDroidDump}}
	}
	if device.YuzuSave == "" {
		return nil
	}
	return []models.SyncPair{{Source: device.YuzuSave, Target: server.YuzuSave}}
}
