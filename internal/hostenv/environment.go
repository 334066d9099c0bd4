package hostenv

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

// Environment describes the host. It implements fingerprint.Environment.
type Environment struct {
	opts   Options
	getenv func(string) string
	now    func() time.Time
}

func NewEnvironment(opts Options) *Environment {
	return &Environment{opts: opts.withDefaults(), getenv: os.Getenv, now: time.Now}
}

func (e *Environment) Describe(_ context.Context) fingerprint.HostInfo {
	screen := e.screen()
	name, offset := e.timezone()
	sys := readSystem()

	return fingerprint.HostInfo{
		UserAgent:           e.userAgent(sys),
		Language:            e.language(),
		Platform:            sys.platform,
		ColorDepth:          e.colorDepth(),
		DeviceMemory:        deviceMemoryGiB(sys.memoryBytes),
		HardwareConcurrency: runtime.NumCPU(),
		Screen:              screen,
		AvailableScreen:     screen,
		Viewport:            screen,
		Timezone:            name,
		TimezoneOffset:      offset,
		SessionStorage:      true,
		LocalStorage:        e.opts.DurableStorage,
		IndexedDB:           false,
		AddBehavior:         false,
		OpenDatabase:        e.opts.DurableStorage,
		CPUClass:            "",
		Plugins:             linkedModules(),
	}
}

func (e *Environment) userAgent(sys system) string {
	if e.opts.UserAgent != "" {
		return e.opts.UserAgent
	}
	return fmt.Sprintf("beacon/%s (%s; %s) %s", e.opts.Version, sys.platform, runtime.GOARCH, runtime.Version())
}

// language derives a BCP 47 tag from the POSIX locale variables,
// "en_US.UTF-8" becoming "en-US".
func (e *Environment) language() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value := e.getenv(key)
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}
		if i := strings.IndexAny(value, ".@"); i >= 0 {
			value = value[:i]
		}
		if value == "" || value == "C" {
			continue
		}
		return strings.ReplaceAll(value, "_", "-")
	}
	return "en-US"
}

func (e *Environment) colorDepth() int {
	switch colorterm := strings.ToLower(e.getenv("COLORTERM")); {
	case colorterm == "truecolor" || colorterm == "24bit":
		return 24
	case strings.Contains(e.getenv("TERM"), "256color"):
		return 8
	case e.getenv("TERM") == "" || e.getenv("TERM") == "dumb":
		return 0
	default:
		return 4
	}
}

// screen reports the terminal size in cells, or zero when the output is
// not a terminal.
func (e *Environment) screen() fingerprint.Size {
	if !term.IsTerminal(e.opts.Terminal) {
		return fingerprint.Size{}
	}
	width, height, err := term.GetSize(e.opts.Terminal)
	if err != nil {
		return fingerprint.Size{}
	}
	return fingerprint.Size{Width: width, Height: height}
}

// timezone returns the IANA zone name and the offset in minutes as UTC
// minus local time.
func (e *Environment) timezone() (string, int) {
	now := e.now()
	_, offsetSeconds := now.Zone()
	return zoneName(e.getenv("TZ"), now.Location()), -offsetSeconds / 60
}

func zoneName(tz string, loc *time.Location) string {
	if tz = strings.TrimPrefix(tz, ":"); tz != "" {
		return tz
	}
	if name := loc.String(); name != "Local" {
		return name
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	return "UTC"
}

// deviceMemoryGiB rounds total memory down to a power of two GiB,
// clamped to [0.25, 8] the way navigator.deviceMemory is.
func deviceMemoryGiB(bytes uint64) float64 {
	if bytes == 0 {
		return 0
	}
	gib := float64(bytes) / (1 << 30)
	value := 0.25
	for value*2 <= gib && value < 8 {
		value *= 2
	}
	return value
}

// linkedModules lists the module dependencies compiled into the binary.
func linkedModules() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return []string{}
	}
	modules := make([]string, 0, len(info.Deps))
	for _, dep := range info.Deps {
		modules = append(modules, dep.Path)
	}
	sort.Strings(modules)
	return modules
}
