package hostenv

import (
	"context"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

func quietLogger() *logger.Logger { return logger.New(logger.ERROR, io.Discard) }

func envWith(vars map[string]string) *Environment {
	e := NewEnvironment(Options{Version: "1.2.3", Root: fstest.MapFS{}, FontDirs: []string{}, Logger: quietLogger()})
	e.getenv = func(key string) string { return vars[key] }
	return e
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		vars map[string]string
		want string
	}{
		{map[string]string{"LANG": "en_US.UTF-8"}, "en-US"},
		{map[string]string{"LANG": "de_DE@euro"}, "de-DE"},
		{map[string]string{"LC_ALL": "fr_FR.UTF-8", "LANG": "en_US.UTF-8"}, "fr-FR"},
		{map[string]string{"LC_ALL": "C", "LANG": "pt_BR"}, "pt-BR"},
		{map[string]string{}, "en-US"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envWith(tt.vars).language(), "%v", tt.vars)
	}
}

func TestColorDepth(t *testing.T) {
	assert.Equal(t, 24, envWith(map[string]string{"COLORTERM": "truecolor", "TERM": "xterm"}).colorDepth())
	assert.Equal(t, 8, envWith(map[string]string{"TERM": "xterm-256color"}).colorDepth())
	assert.Equal(t, 4, envWith(map[string]string{"TERM": "vt100"}).colorDepth())
	assert.Equal(t, 0, envWith(map[string]string{"TERM": "dumb"}).colorDepth())
}

func TestTimezone(t *testing.T) {
	e := envWith(map[string]string{"TZ": "Asia/Kolkata"})
	loc := time.FixedZone("IST", 5*3600+1800)
	e.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, loc) }

	name, offset := e.timezone()
	assert.Equal(t, "Asia/Kolkata", name)
	assert.Equal(t, -330, offset)
}

func TestDeviceMemory(t *testing.T) {
	assert.Equal(t, 0.0, deviceMemoryGiB(0))
	assert.Equal(t, 0.25, deviceMemoryGiB(100<<20))
	assert.Equal(t, 2.0, deviceMemoryGiB(3<<30))
	assert.Equal(t, 8.0, deviceMemoryGiB(64<<30))
}

func TestDescribe(t *testing.T) {
	e := envWith(map[string]string{"LANG": "en_GB.UTF-8"})
	e.opts.DurableStorage = true

	info := e.Describe(context.Background())
	assert.True(t, strings.HasPrefix(info.UserAgent, "beacon/1.2.3 ("))
	assert.Equal(t, "en-GB", info.Language)
	assert.NotEmpty(t, info.Platform)
	assert.Positive(t, info.HardwareConcurrency)
	assert.True(t, info.SessionStorage)
	assert.True(t, info.LocalStorage)
	assert.True(t, info.OpenDatabase)
	assert.False(t, info.IndexedDB)
	assert.NotNil(t, info.Plugins)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#f60", color.NRGBA{R: 0xff, G: 0x66, B: 0x00, A: 255}},
		{"#069", color.NRGBA{R: 0x00, G: 0x66, B: 0x99, A: 255}},
		{"#102030", color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}},
		{"rgba(102, 204, 0, 0.7)", color.NRGBA{R: 102, G: 204, B: 0, A: 179}},
		{"rgb(1,2,3)", color.NRGBA{R: 1, G: 2, B: 3, A: 255}},
	}
	for _, tt := range tests {
		got, err := parseColor(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"orange", "#12", "rgba(1,2)", "rgba(1,2,3,2)"} {
		_, err := parseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestCanvasDeterministic(t *testing.T) {
	fp := fingerprint.New(fingerprint.Probes{Canvas: CanvasFactory{}}, fingerprint.Options{
		PrivacyMode: fingerprint.PrivacyFull,
		Logger:      quietLogger(),
	})
	first := fp.GetFingerprint(context.Background())
	second := fp.GetFingerprint(context.Background())

	canvas, ok := first.Components[fingerprint.ComponentCanvas].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(canvas, "data:image/png;base64,"))
	assert.Equal(t, first.DeviceID, second.DeviceID)
}

func TestNewCanvasRejectsEmpty(t *testing.T) {
	_, err := CanvasFactory{}.NewCanvas(0, 10)
	assert.Error(t, err)
}

func TestGPU(t *testing.T) {
	root := fstest.MapFS{
		"sys/class/drm/card1/device/uevent": {Data: []byte("DRIVER=amdgpu\nPCI_ID=1002:73BF\n")},
		"sys/class/drm/card0/device/uevent": {Data: []byte("DRIVER=i915\nPCI_ID=8086:3E9B\nPCI_SUBSYS_ID=1028:0869\n")},
	}
	gl, err := NewGPU(root).NewGLContext()
	require.NoError(t, err)

	assert.True(t, gl.Extension("WEBGL_debug_renderer_info"))
	assert.False(t, gl.Extension("OES_texture_float"))
	assert.Equal(t, "Intel", gl.Parameter(fingerprint.UnmaskedVendorWebGL))
	assert.Equal(t, "Intel 8086:3e9b (i915)", gl.Parameter(fingerprint.UnmaskedRendererWebGL))
	assert.Empty(t, gl.Parameter(0x1F00))
}

func TestGPUMissing(t *testing.T) {
	_, err := NewGPU(fstest.MapFS{}).NewGLContext()
	assert.ErrorIs(t, err, errNoGPU)
}

func TestMediaDevices(t *testing.T) {
	root := fstest.MapFS{
		"dev/snd/pcmC0D0p":                  {},
		"dev/snd/pcmC0D0c":                  {},
		"dev/snd/controlC0":                 {},
		"dev/snd/pcmC1D3p":                  {},
		"proc/asound/card0/id":              {Data: []byte("PCH\n")},
		"dev/video0":                        {},
		"sys/class/video4linux/video0/name": {Data: []byte("Integrated Camera\n")},
		"dev/video1":                        {},
	}
	devices, err := NewMediaEnumerator(root).EnumerateDevices(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []fingerprint.MediaDevice{
		{Kind: "audiooutput", Label: "PCH 0"},
		{Kind: "audioinput", Label: "PCH 0"},
		{Kind: "audiooutput", Label: "card1 3"},
		{Kind: "videoinput", Label: "Integrated Camera"},
		{Kind: "videoinput", Label: "video1"},
	}, devices)
}

func TestMediaDevicesNone(t *testing.T) {
	devices, err := NewMediaEnumerator(fstest.MapFS{}).EnumerateDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestAudioBackendSignature(t *testing.T) {
	fp := fingerprint.New(fingerprint.Probes{Audio: AudioBackend{}}, fingerprint.Options{
		PrivacyMode: fingerprint.PrivacyFull,
		Clock:       clock.Real(),
		Logger:      quietLogger(),
	})

	first := fp.GetFingerprint(context.Background()).Components[fingerprint.ComponentAudio]
	second := fp.GetFingerprint(context.Background()).Components[fingerprint.ComponentAudio]

	require.IsType(t, "", first)
	assert.NotEqual(t, fingerprint.AudioUnavailable, first)
	assert.NotEqual(t, fingerprint.AudioDisabled, first)
	assert.Equal(t, first, second)
}

func TestAudioContextClose(t *testing.T) {
	ac, err := AudioBackend{}.NewContext(context.Background())
	require.NoError(t, err)

	require.NoError(t, ac.Close())
	assert.Equal(t, fingerprint.AudioContextClosed, ac.State())
	assert.Error(t, ac.Close())

	_, err = ac.CreateOscillator()
	assert.ErrorIs(t, err, errContextClosed)
}

func TestFontMeasurer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Go-Regular.ttf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.ttf"), []byte("not a font"), 0o644))

	m := NewFontMeasurer([]string{dir}, quietLogger())
	ctx := context.Background()

	assert.Equal(t, []string{"go"}, m.Families())

	installed, err := m.Measure(ctx, []string{"Go", "monospace"}, "mmmmmmmmmmlli", 72)
	require.NoError(t, err)
	assert.Positive(t, installed.Width)
	assert.Positive(t, installed.Height)

	fallback, err := m.Measure(ctx, []string{"Missing Font", "monospace"}, "mmmmmmmmmmlli", 72)
	require.NoError(t, err)
	assert.InDelta(t, 13*0.6*72, fallback.Width, 1e-9)
	assert.NotEqual(t, installed, fallback)

	_, err = m.Measure(ctx, []string{"Missing Font"}, "x", 72)
	assert.ErrorIs(t, err, errNoFamily)
}

func TestProbesFullFingerprint(t *testing.T) {
	probes := Probes(Options{
		Root:     fstest.MapFS{"sys/class/drm/card0/device/uevent": {Data: []byte("PCI_ID=10DE:2484\n")}},
		Version:  "test",
		FontDirs: []string{},
		Logger:   quietLogger(),
	})
	fp := fingerprint.New(probes, fingerprint.Options{PrivacyMode: fingerprint.PrivacyFull, Logger: quietLogger()})

	result := fp.GetFingerprint(context.Background())
	assert.Len(t, result.DeviceID, 64)
	assert.Equal(t, fingerprint.WebGLInfo{Vendor: "NVIDIA Corporation", Render: "NVIDIA Corporation 10de:2484"}, result.Components[fingerprint.ComponentWebGL])
	assert.Equal(t, []string{}, result.Components[fingerprint.ComponentFonts])
}
