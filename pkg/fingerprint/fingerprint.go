// Package fingerprint derives a stable pseudo-identifier for a device
// from passively observable host signals. Probes are best effort: a
// probe that cannot produce a value degrades to a sentinel, and
// fingerprinting as a whole never fails.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

type PrivacyMode string

const (
	PrivacyStrict   PrivacyMode = "strict"
	PrivacyBalanced PrivacyMode = "balanced"
	PrivacyFull     PrivacyMode = "full"
)

func ParsePrivacyMode(s string) (PrivacyMode, bool) {
	switch PrivacyMode(s) {
	case PrivacyStrict, PrivacyBalanced, PrivacyFull:
		return PrivacyMode(s), true
	default:
		return PrivacyBalanced, false
	}
}

// Component names.
const (
	ComponentUserAgent                 = "userAgent"
	ComponentLanguage                  = "language"
	ComponentColorDepth                = "colorDepth"
	ComponentDeviceMemory              = "deviceMemory"
	ComponentHardwareConcurrency       = "hardwareConcurrency"
	ComponentScreenResolution          = "screenResolution"
	ComponentAvailableScreenResolution = "availableScreenResolution"
	ComponentTimezoneOffset            = "timezoneOffset"
	ComponentTimezone                  = "timezone"
	ComponentSessionStorage            = "sessionStorage"
	ComponentLocalStorage              = "localStorage"
	ComponentIndexedDB                 = "indexedDb"
	ComponentAddBehavior               = "addBehavior"
	ComponentOpenDatabase              = "openDatabase"
	ComponentCPUClass                  = "cpuClass"
	ComponentPlatform                  = "platform"
	ComponentPlugins                   = "plugins"
	ComponentCanvas                    = "canvas"
	ComponentWebGL                     = "webgl"
	ComponentFonts                     = "fonts"
	ComponentAudio                     = "audio"
	ComponentMediaDevices              = "mediaDevices"
)

// collectibleComponents is the confidence denominator. It does not
// depend on the privacy mode.
var collectibleComponents = []string{
	ComponentUserAgent,
	ComponentLanguage,
	ComponentColorDepth,
	ComponentDeviceMemory,
	ComponentHardwareConcurrency,
	ComponentScreenResolution,
	ComponentAvailableScreenResolution,
	ComponentTimezoneOffset,
	ComponentTimezone,
	ComponentSessionStorage,
	ComponentLocalStorage,
	ComponentIndexedDB,
	ComponentAddBehavior,
	ComponentOpenDatabase,
	ComponentCPUClass,
	ComponentPlatform,
	ComponentPlugins,
	ComponentCanvas,
	ComponentWebGL,
	ComponentFonts,
	ComponentAudio,
	ComponentMediaDevices,
}

var (
	strictComponents = []string{
		ComponentLanguage,
		ComponentTimezone,
		ComponentScreenResolution,
		ComponentPlatform,
	}

	balancedComponents = append(slices.Clone(strictComponents),
		ComponentColorDepth,
		ComponentHardwareConcurrency,
		ComponentDeviceMemory,
		ComponentUserAgent,
		ComponentAudio,
	)
)

// CollectibleComponents returns every component name a fingerprint can
// contain.
func CollectibleComponents() []string {
	return slices.Clone(collectibleComponents)
}

// Components maps component names to probe results.
type Components map[string]any

type DeviceFingerprint struct {
	DeviceID   string     `json:"deviceId"`
	Confidence float64    `json:"confidence"`
	Components Components `json:"components"`
}

// Probes bundles the signal sources. A nil source makes its probe
// return its sentinel.
type Probes struct {
	Environment Environment
	Canvas      CanvasFactory
	GL          GLFactory
	Audio       AudioBackend
	Fonts       FontMeasurer
	Media       MediaEnumerator
}

type Options struct {
	PrivacyMode       PrivacyMode
	ExcludeComponents []string
	AudioTimeout      time.Duration
	Clock             clock.Clock
	Logger            *logger.Logger
}

type Fingerprinter struct {
	probes Probes
	opts   Options
	clock  clock.Clock
	log    *logger.Logger
}

func New(probes Probes, opts Options) *Fingerprinter {
	if _, ok := ParsePrivacyMode(string(opts.PrivacyMode)); !ok {
		opts.PrivacyMode = PrivacyBalanced
	}
	if opts.AudioTimeout <= 0 {
		opts.AudioTimeout = DefaultAudioTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Fingerprinter{
		probes: probes,
		opts:   opts,
		clock:  opts.Clock,
		log:    opts.Logger.WithField("component", "fingerprint"),
	}
}

func (f *Fingerprinter) PrivacyMode() PrivacyMode { return f.opts.PrivacyMode }

// GetFingerprint runs every probe, filters the results for the privacy
// mode and hashes the canonical serialization of what remains.
func (f *Fingerprinter) GetFingerprint(ctx context.Context) DeviceFingerprint {
	components := f.collect(ctx)
	enabled := f.filter(components)

	deviceID := hashComponents(enabled)
	if deviceID == "" {
		f.log.Warn("Failed to serialize fingerprint components")
	}

	return DeviceFingerprint{
		DeviceID:   deviceID,
		Confidence: confidence(enabled),
		Components: enabled,
	}
}

// collect runs the probes concurrently and waits for all of them.
func (f *Fingerprinter) collect(ctx context.Context) Components {
	var (
		wg      sync.WaitGroup
		host    HostInfo
		canvas  string
		webgl   WebGLInfo
		fonts   []string
		audio   string
		media   []string
		plugins []string
	)

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					f.log.Warn("Signal probe panicked", map[string]any{"probe": name, "panic": r})
				}
			}()
			fn()
		}()
	}

	// Sentinels stay in place if a probe panics.
	audio = AudioUnavailable
	fonts, media, plugins = []string{}, []string{}, []string{}

	run("host", func() {
		if f.probes.Environment != nil {
			host = f.probes.Environment.Describe(ctx)
		}
	})
	run("canvas", func() { canvas = f.collectCanvas(ctx) })
	run("webgl", func() { webgl = f.collectWebGL(ctx) })
	run("fonts", func() { fonts = f.collectFonts(ctx) })
	run("audio", func() { audio = f.collectAudio(ctx) })
	run("media", func() { media = f.collectMediaDevices(ctx) })
	wg.Wait()

	if f.opts.PrivacyMode != PrivacyStrict {
		plugins = slices.Clone(host.Plugins)
		if plugins == nil {
			plugins = []string{}
		}
		sort.Strings(plugins)
	}

	components := Components{
		ComponentUserAgent:                 host.UserAgent,
		ComponentLanguage:                  host.Language,
		ComponentColorDepth:                host.ColorDepth,
		ComponentHardwareConcurrency:       host.HardwareConcurrency,
		ComponentScreenResolution:          host.Screen.String(),
		ComponentAvailableScreenResolution: host.AvailableScreen.String(),
		ComponentTimezoneOffset:            host.TimezoneOffset,
		ComponentTimezone:                  host.Timezone,
		ComponentSessionStorage:            host.SessionStorage,
		ComponentLocalStorage:              host.LocalStorage,
		ComponentIndexedDB:                 host.IndexedDB,
		ComponentAddBehavior:               host.AddBehavior,
		ComponentOpenDatabase:              host.OpenDatabase,
		ComponentPlatform:                  host.Platform,
		ComponentPlugins:                   plugins,
		ComponentCanvas:                    canvas,
		ComponentWebGL:                     webgl,
		ComponentFonts:                     fonts,
		ComponentAudio:                     audio,
		ComponentMediaDevices:              media,
	}
	if host.DeviceMemory > 0 {
		components[ComponentDeviceMemory] = host.DeviceMemory
	}
	if host.CPUClass != "" {
		components[ComponentCPUClass] = host.CPUClass
	}
	return components
}

// filter keeps the components allowed by the privacy mode minus the
// exclusion list.
func (f *Fingerprinter) filter(components Components) Components {
	var allowed []string
	switch f.opts.PrivacyMode {
	case PrivacyStrict:
		allowed = strictComponents
	case PrivacyFull:
		allowed = make([]string, 0, len(components))
		for name := range components {
			allowed = append(allowed, name)
		}
	default:
		allowed = balancedComponents
	}

	filtered := make(Components, len(allowed))
	for _, name := range allowed {
		if slices.Contains(f.opts.ExcludeComponents, name) {
			continue
		}
		if value, ok := components[name]; ok && value != nil {
			filtered[name] = value
		}
	}
	return filtered
}

func hashComponents(components Components) string {
	serialized, err := Canonicalize(components)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(serialized)
	return hex.EncodeToString(hash[:])
}

func confidence(enabled Components) float64 {
	present := 0
	for _, value := range enabled {
		if isPresent(value) {
			present++
		}
	}
	return float64(present) / float64(len(collectibleComponents)) * 100
}

func isPresent(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []string:
		return len(v) > 0
	default:
		return true
	}
}
