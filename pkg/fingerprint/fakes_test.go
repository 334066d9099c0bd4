package fingerprint

import (
	"context"
	"errors"
	"sync"
)

type fakeEnvironment struct {
	info HostInfo
}

func (e fakeEnvironment) Describe(context.Context) HostInfo { return e.info }

func sampleHost() HostInfo {
	return HostInfo{
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0.0.0",
		Language:            "en-US",
		Platform:            "Linux x86_64",
		ColorDepth:          24,
		DeviceMemory:        8,
		HardwareConcurrency: 8,
		Screen:              Size{Width: 1920, Height: 1080},
		AvailableScreen:     Size{Width: 1920, Height: 1040},
		Viewport:            Size{Width: 1280, Height: 720},
		Timezone:            "Europe/Berlin",
		TimezoneOffset:      -60,
		SessionStorage:      true,
		LocalStorage:        true,
		IndexedDB:           true,
		Plugins:             []string{"PDF Viewer", "Chrome PDF Viewer"},
	}
}

type fakeCanvasFactory struct {
	noContext bool
	dataURL   string
	ops       *[]string
}

func (f fakeCanvasFactory) NewCanvas(width, height int) (Canvas, error) {
	return &fakeCanvas{factory: f}, nil
}

type fakeCanvas struct {
	factory fakeCanvasFactory
}

func (c *fakeCanvas) Context2D() (Context2D, bool) {
	if c.factory.noContext {
		return nil, false
	}
	return fakeContext2D{ops: c.factory.ops}, true
}

func (c *fakeCanvas) DataURL() (string, error) { return c.factory.dataURL, nil }

type fakeContext2D struct {
	ops *[]string
}

func (c fakeContext2D) record(op string) {
	if c.ops != nil {
		*c.ops = append(*c.ops, op)
	}
}

func (c fakeContext2D) SetFont(font string)                  { c.record("font " + font) }
func (c fakeContext2D) SetTextBaseline(baseline string)      { c.record("baseline " + baseline) }
func (c fakeContext2D) SetFillStyle(style string)            { c.record("fill " + style) }
func (c fakeContext2D) FillRect(x, y, width, height float64) { c.record("rect") }
func (c fakeContext2D) FillText(text string, x, y float64)   { c.record("text " + text) }

type fakeGLFactory struct {
	noExtension bool
	err         error
}

func (f fakeGLFactory) NewGLContext() (GLContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fakeGL{noExtension: f.noExtension}, nil
}

type fakeGL struct {
	noExtension bool
}

func (g fakeGL) Extension(name string) bool {
	return !g.noExtension && name == "WEBGL_debug_renderer_info"
}

func (g fakeGL) Parameter(name int) string {
	switch name {
	case UnmaskedVendorWebGL:
		return "Mock GPU Vendor"
	case UnmaskedRendererWebGL:
		return "Mock GPU Renderer"
	}
	return ""
}

// fakeAudio records every teardown call so tests can check that each
// node is disconnected and the context closed exactly once.
type fakeAudio struct {
	mu            sync.Mutex
	sample        []float32
	buffers       chan []float32
	initialState  string
	failProcessor bool
	contextErr    error

	created     []*fakeAudioNode
	closeCalls  int
	stopCalls   int
	state       string
	oscWaveform string
	gainValue   float64
}

// newFakeAudio delivers sample once per context; a nil sample never
// delivers anything.
func newFakeAudio(sample []float32) *fakeAudio {
	return &fakeAudio{sample: sample, initialState: "running"}
}

func (a *fakeAudio) NewContext(context.Context) (AudioContext, error) {
	if a.contextErr != nil {
		return nil, a.contextErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers = make(chan []float32, 1)
	if a.sample != nil {
		a.buffers <- a.sample
	}
	a.state = a.initialState
	return &fakeAudioContext{audio: a, destination: &fakeAudioNode{audio: a}}, nil
}

func (a *fakeAudio) disconnects() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make([]int, len(a.created))
	for i, node := range a.created {
		counts[i] = node.disconnects
	}
	return counts
}

type fakeAudioContext struct {
	audio       *fakeAudio
	destination *fakeAudioNode
}

func (c *fakeAudioContext) newNode() *fakeAudioNode {
	c.audio.mu.Lock()
	defer c.audio.mu.Unlock()
	node := &fakeAudioNode{audio: c.audio}
	c.audio.created = append(c.audio.created, node)
	return node
}

func (c *fakeAudioContext) CreateOscillator() (Oscillator, error) {
	return &fakeOscillator{fakeAudioNode: c.newNode()}, nil
}

func (c *fakeAudioContext) CreateAnalyser() (AudioNode, error) {
	return c.newNode(), nil
}

func (c *fakeAudioContext) CreateGain() (GainNode, error) {
	return &fakeGain{fakeAudioNode: c.newNode()}, nil
}

func (c *fakeAudioContext) CreateScriptProcessor(bufferSize, in, out int) (ScriptProcessor, error) {
	if c.audio.failProcessor {
		return nil, errors.New("script processor not supported")
	}
	return &fakeProcessor{fakeAudioNode: c.newNode(), buffers: c.audio.buffers}, nil
}

func (c *fakeAudioContext) Destination() AudioNode { return c.destination }

func (c *fakeAudioContext) State() string {
	c.audio.mu.Lock()
	defer c.audio.mu.Unlock()
	return c.audio.state
}

func (c *fakeAudioContext) Close() error {
	c.audio.mu.Lock()
	defer c.audio.mu.Unlock()
	c.audio.closeCalls++
	c.audio.state = AudioContextClosed
	return nil
}

type fakeAudioNode struct {
	audio       *fakeAudio
	disconnects int
}

func (n *fakeAudioNode) Connect(AudioNode) error { return nil }

func (n *fakeAudioNode) Disconnect() {
	n.audio.mu.Lock()
	defer n.audio.mu.Unlock()
	n.disconnects++
}

type fakeOscillator struct {
	*fakeAudioNode
}

func (o *fakeOscillator) SetType(waveform string) { o.audio.oscWaveform = waveform }
func (o *fakeOscillator) Start(float64) error     { return nil }

func (o *fakeOscillator) Stop() {
	o.audio.mu.Lock()
	defer o.audio.mu.Unlock()
	o.audio.stopCalls++
}

type fakeGain struct {
	*fakeAudioNode
}

func (g *fakeGain) SetGain(value float64) { g.audio.gainValue = value }

type fakeProcessor struct {
	*fakeAudioNode
	buffers chan []float32
}

func (p *fakeProcessor) Buffers() <-chan []float32 { return p.buffers }

// fakeFonts renders generic families with fixed boxes and installed
// fonts with a box derived from the name length.
type fakeFonts struct {
	installed map[string]bool
	// partial fonts differ from only the sans-serif baseline.
	partial map[string]bool
}

var genericBoxes = map[string]Box{
	"monospace":  {Width: 560, Height: 80},
	"sans-serif": {Width: 520, Height: 82},
	"serif":      {Width: 500, Height: 84},
}

func (f fakeFonts) Measure(_ context.Context, families []string, text string, sizePx float64) (Box, error) {
	for _, family := range families {
		if box, ok := genericBoxes[family]; ok {
			return box, nil
		}
		if f.installed[family] {
			return Box{Width: float64(400 + len(family)), Height: 90}, nil
		}
		if f.partial[family] && families[len(families)-1] == "sans-serif" {
			return Box{Width: 1, Height: 1}, nil
		}
	}
	return Box{}, errors.New("no family available")
}

type fakeMedia struct {
	devices []MediaDevice
	err     error
}

func (m fakeMedia) EnumerateDevices(context.Context) ([]MediaDevice, error) {
	return m.devices, m.err
}

func fullProbes() Probes {
	return Probes{
		Environment: fakeEnvironment{info: sampleHost()},
		Canvas:      fakeCanvasFactory{dataURL: "data:image/png;base64,mock-canvas-data"},
		GL:          fakeGLFactory{},
		Audio:       newFakeAudio([]float32{0.25, 0.5, -0.25}),
		Fonts:       fakeFonts{installed: map[string]bool{"Arial": true, "Verdana": true}},
		Media: fakeMedia{devices: []MediaDevice{
			{Kind: "videoinput", Label: "Webcam"},
			{Kind: "audioinput", Label: "Microphone"},
		}},
	}
}
