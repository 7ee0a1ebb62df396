package registry

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"emusync/models"
)

var (
	// ErrInvalidDevice is returned when a device lacks connection fields.
	ErrInvalidDevice = errors.New("invalid device")

	// ErrIncompleteServer is returned when a server path is not configured.
	ErrIncompleteServer = errors.New("incomplete server config")
)

// RequiredBinaries must be on the server PATH for the Dolphin archive handling.
var RequiredBinaries = []string{"zip", "unzip"}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func missingConnectionFields(d models.Device) []string {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.IP == "" {
		missing = append(missing, "ip")
	}
	if d.Port == 0 {
		missing = append(missing, "port")
	}
	if d.User == "" {
		missing = append(missing, "user")
	}
	if d.OS == "" {
		missing = append(missing, "os")
	}
	return missing
}

// NormalizeDevice checks the connection fields and derives OS and sync type.
func NormalizeDevice(d models.Device) (models.Device, error) {
	if missing := missingConnectionFields(d); len(missing) > 0 {
		return d, fmt.Errorf("%w: missing %s", ErrInvalidDevice, strings.Join(missing, ", "))
	}
	d.OS = models.ParseOS(string(d.OS))
	d.SyncType = models.SyncTypeForOS(d.OS)
	return d, nil
}

// MissingFieldsError lists, in form order, the required fields a device lacks.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrInvalidDevice, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrInvalidDevice }

func missingRequiredFields(d models.Device) []string {
	required := []struct {
		name string
		set  bool
	}{
		{"name", d.Name != ""},
		{"ip", d.IP != ""},
		{"port", d.Port != 0},
		{"user", d.User != ""},
		{"password", d.Password != ""},
		{"os", d.OS != ""},
		{"workDir", d.WorkDir != ""},
	}
	var missing []string
	for _, f := range required {
		if !f.set {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// ValidateNewDevice applies the stricter rules for devices added through the
// admin API. A failure is a *MissingFieldsError.
func ValidateNewDevice(d models.Device) error {
	if missing := missingRequiredFields(d); len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// VerifyDevices normalizes every device, drops the invalid ones and sorts by name.
func VerifyDevices(devices []models.Device, logger zerolog.Logger) []models.Device {
	verified := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		nd, err := NormalizeDevice(d)
		if err != nil {
			logger.Warn().Err(err).Str("device", d.Name).Msg("skipping device")
			continue
		}
		verified = append(verified, nd)
	}
	sort.Slice(verified, func(i, j int) bool { return verified[i].Name < verified[j].Name })
	return verified
}

// VerifyServer requires every server path and the work dir.
func VerifyServer(s models.ServerConfig) error {
	var missing []string
	for key, p := range s.Paths() {
		if p == "" {
			missing = append(missing, key)
		}
	}
	if s.WorkDir == "" {
		missing = append(missing, "workDir")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrIncompleteServer, strings.Join(missing, ", "))
	}
	return nil
}

// CheckResult is one launch precondition.
type CheckResult struct {
	Name string
	Path string
	Err  error
}

func (r CheckResult) OK() bool { return r.Err == nil }

// CheckServer verifies the server folders exist and the required binaries are installed.
// Results are sorted by name, folders first.
func CheckServer(fs afero.Fs, s models.ServerConfig) []CheckResult {
	var results []CheckResult
	for key, p := range s.Paths() {
		r := CheckResult{Name: key, Path: p}
		if p == "" {
			r.Err = errors.New("not configured")
		} else if ok, err := afero.DirExists(fs, p); err != nil {
			r.Err = err
		} else if !ok {
			r.Err = errors.New("folder does not exist")
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	for _, bin := range RequiredBinaries {
		p, err := lookPath(bin)
		results = append(results, CheckResult{Name: "bin:" + bin, Path: p, Err: err})
	}
	return results
}

// Healthy reports whether every check passed.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK() {
			return false
		}
	}
	return true
}
