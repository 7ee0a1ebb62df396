package remote

import (
	"fmt"
	"path"
	"strings"

	"emusync/models"
)

// SSHCommand wraps remoteCmd in an ssh invocation against device.
func SSHCommand(device models.Device, remoteCmd string) string {
	return fmt.Sprintf("ssh -p %d %s@%s '%s'", device.Port, device.User, device.IP, remoteCmd)
}

// SCPCommand copies a directory tree. When push is true source is local and
// target is on the device; otherwise the other way around.
func SCPCommand(device models.Device, source, target string, push bool) string {
	if push {
		return fmt.Sprintf("scp -P %d -r %s %s@%s:%s", device.Port, source, device.User, device.IP, target)
	}
	return fmt.Sprintf("scp -P %d -r %s@%s:%s %s", device.Port, device.User, device.IP, source, target)
}

// Escape quotes a path for the target shell. Windows paths are double
// quoted, POSIX paths get their spaces backslash-escaped.
func Escape(p string, windows bool) string {
	if windows {
		return `"` + p + `"`
	}
	return strings.ReplaceAll(p, " ", `\ `)
}

// RemoveCommand deletes a directory tree, tolerating its absence.
func RemoveCommand(p string, windows bool) string {
	if windows {
		return fmt.Sprintf("if (Test-Path -Path %s -PathType Container) { rm -r %s }", p, p)
	}
	return "rm -rf " + p
}

// FolderName is the last element of a slash separated path.
func FolderName(p string) string {
	return path.Base(p)
}
