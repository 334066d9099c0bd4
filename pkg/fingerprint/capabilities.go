package fingerprint

import (
	"context"
	"fmt"
)

// Size is a width x height pair in pixels (or cells, for terminals).
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// HostInfo is a snapshot of passively observable host properties.
// Zero DeviceMemory and empty CPUClass mean "not exposed" and are left
// out of the component set.
type HostInfo struct {
	UserAgent           string
	Language            string
	Platform            string
	ColorDepth          int
	DeviceMemory        float64
	HardwareConcurrency int
	Screen              Size
	AvailableScreen     Size
	Viewport            Size
	Timezone            string
	TimezoneOffset      int // minutes, UTC minus local
	SessionStorage      bool
	LocalStorage        bool
	IndexedDB           bool
	AddBehavior         bool
	OpenDatabase        bool
	CPUClass            string
	Plugins             []string
}

// Environment reports host properties.
type Environment interface {
	Describe(ctx context.Context) HostInfo
}

// CanvasFactory creates offscreen 2-D canvases.
type CanvasFactory interface {
	NewCanvas(width, height int) (Canvas, error)
}

type Canvas interface {
	// Context2D reports false when no 2-D context is available.
	Context2D() (Context2D, bool)
	DataURL() (string, error)
}

type Context2D interface {
	SetFont(font string)
	SetTextBaseline(baseline string)
	SetFillStyle(style string)
	FillRect(x, y, width, height float64)
	FillText(text string, x, y float64)
}

// Debug renderer parameter names.
const (
	UnmaskedVendorWebGL   = 0x9245
	UnmaskedRendererWebGL = 0x9246

	debugRendererExtension = "WEBGL_debug_renderer_info"
)

// GLFactory creates WebGL-style rendering contexts.
type GLFactory interface {
	NewGLContext() (GLContext, error)
}

type GLContext interface {
	// Extension reports whether the named extension is supported.
	Extension(name string) bool
	Parameter(name int) string
}

// AudioBackend creates audio processing contexts.
type AudioBackend interface {
	NewContext(ctx context.Context) (AudioContext, error)
}

// AudioContextClosed is the state of a context after Close.
const AudioContextClosed = "closed"

type AudioContext interface {
	CreateOscillator() (Oscillator, error)
	CreateAnalyser() (AudioNode, error)
	CreateGain() (GainNode, error)
	CreateScriptProcessor(bufferSize, inputChannels, outputChannels int) (ScriptProcessor, error)
	Destination() AudioNode
	State() string
	Close() error
}

type AudioNode interface {
	Connect(destination AudioNode) error
	Disconnect()
}

type Oscillator interface {
	AudioNode
	SetType(waveform string)
	Start(when float64) error
	Stop()
}

type GainNode interface {
	AudioNode
	SetGain(value float64)
}

// ScriptProcessor delivers processed input buffers of channel 0, one
// per processing callback.
type ScriptProcessor interface {
	AudioNode
	Buffers() <-chan []float32
}

// Box is the rendered size of a text run.
type Box struct {
	Width  float64
	Height float64
}

// FontMeasurer renders text with a CSS-style font stack: the first
// installed family in families is used.
type FontMeasurer interface {
	Measure(ctx context.Context, families []string, text string, sizePx float64) (Box, error)
}

type MediaDevice struct {
	Kind  string
	Label string
}

type MediaEnumerator interface {
	EnumerateDevices(ctx context.Context) ([]MediaDevice, error)
}
