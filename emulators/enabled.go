package emulators

import "emusync/models"

// Enabled lists the emulators a device has enough configuration for.
func Enabled(device models.Device) []models.Emulator {
	has := func(s string) bool { return s != "" }
	android := device.OS == models.OSAndroid

	enabled := make([]models.Emulator, 0, len(models.Emulators))
	add := func(ok bool, e models.Emulator) {
		if ok {
			enabled = append(enabled, e)
		}
	}

	add(has(device.CemuSave), models.EmulatorCemu)
	add(has(device.Azahar), models.EmulatorAzahar)
	add((!android && has(device.DolphinGC) && has(device.DolphinWii)) || (android && has(device.DolphinDroidDump)), models.EmulatorDolphin)
	add(has(device.MupenFzSave), models.EmulatorMupen)
	add(has(device.Nethersx2Save) && (!android || has(device.Nethersx2DroidDump)), models.EmulatorNethersx2)
	add(has(device.Melonds), models.EmulatorMelonds)
	add(has(device.Pcsx2Save), models.EmulatorPcsx2)
	add(has(device.PpssppSave) && has(device.PpssppState), models.EmulatorPpsspp)
	add(has(device.RetroarchSave) && has(device.RetroarchState), models.EmulatorRetroarch)
	add(has(device.Rpcs3Save), models.EmulatorRpcs3)
	add(has(device.RyujinxSave), models.EmulatorRyujinx)
	add(device.OS == models.OSNX && has(device.SwitchSave), models.EmulatorSwitch)
	add(has(device.Vita3kSave), models.EmulatorVita3k)
	add(has(device.XemuSave), models.EmulatorXemu)
	add(has(device.XeniaSave), models.EmulatorXenia)
	add(has(device.YuzuSave) || (android && has(device.YuzuDroid) && has(device.YuzuDroidDump)), models.EmulatorYuzu)

	return enabled
}

// Simplify converts a device into its public listing form.
func Simplify(device models.Device) models.SimpleDevice {
	return models.SimpleDevice{
		Name:             device.Name,
		OS:               device.OS,
		EmulatorsEnabled: Enabled(device),
	}
}
