package hostenv

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

const (
	sampleRate       = 44100
	defaultFrequency = 440
)

var (
	errContextClosed  = errors.New("audio context is closed")
	errAlreadyStarted = errors.New("oscillator already started")
)

// AudioBackend is an offline audio renderer. Starting an oscillator
// renders one block through the connected graph.
type AudioBackend struct{}

func (AudioBackend) NewContext(ctx context.Context) (fingerprint.AudioContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ac := &audioContext{state: "running"}
	ac.destination = &node{ctx: ac}
	return ac, nil
}

type audioContext struct {
	mu          sync.Mutex
	state       string
	destination *node
}

func (c *audioContext) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == fingerprint.AudioContextClosed
}

func (c *audioContext) CreateOscillator() (fingerprint.Oscillator, error) {
	if c.closed() {
		return nil, errContextClosed
	}
	return &oscillator{node: node{ctx: c}, waveform: "sine", frequency: defaultFrequency}, nil
}

func (c *audioContext) CreateAnalyser() (fingerprint.AudioNode, error) {
	if c.closed() {
		return nil, errContextClosed
	}
	return &node{ctx: c}, nil
}

func (c *audioContext) CreateGain() (fingerprint.GainNode, error) {
	if c.closed() {
		return nil, errContextClosed
	}
	return &gainNode{node: node{ctx: c}, gain: 1}, nil
}

func (c *audioContext) CreateScriptProcessor(bufferSize, _, _ int) (fingerprint.ScriptProcessor, error) {
	if c.closed() {
		return nil, errContextClosed
	}
	p := &scriptProcessor{node: node{ctx: c}, size: bufferSize, buffers: make(chan []float32, 1)}
	p.node.process = p.handle
	return p, nil
}

func (c *audioContext) Destination() fingerprint.AudioNode { return c.destination }

func (c *audioContext) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *audioContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == fingerprint.AudioContextClosed {
		return errContextClosed
	}
	c.state = fingerprint.AudioContextClosed
	return nil
}

// node passes its input to every connected output. process, when set,
// transforms the block first.
type node struct {
	ctx     *audioContext
	mu      sync.Mutex
	outputs []*node
	process func([]float32) []float32
}

func (n *node) self() *node { return n }

type selfer interface{ self() *node }

func (n *node) Connect(destination fingerprint.AudioNode) error {
	target, ok := destination.(selfer)
	if !ok {
		return errors.New("destination belongs to another audio backend")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outputs = append(n.outputs, target.self())
	return nil
}

func (n *node) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outputs = nil
}

func (n *node) push(block []float32) {
	if n.process != nil {
		block = n.process(block)
	}
	n.mu.Lock()
	outputs := append([]*node(nil), n.outputs...)
	n.mu.Unlock()
	for _, out := range outputs {
		out.push(block)
	}
}

type oscillator struct {
	node
	waveform  string
	frequency float64
	started   bool
}

func (o *oscillator) SetType(waveform string) { o.waveform = waveform }

func (o *oscillator) Start(float64) error {
	if o.ctx.closed() {
		return errContextClosed
	}
	if o.started {
		return errAlreadyStarted
	}
	o.started = true

	block := make([]float32, 4096)
	for i := range block {
		block[i] = o.sample(float64(i) / sampleRate)
	}
	go o.push(block)
	return nil
}

func (o *oscillator) Stop() {}

func (o *oscillator) sample(t float64) float32 {
	phase := math.Mod(t*o.frequency, 1)
	switch o.waveform {
	case "square":
		if phase < 0.5 {
			return 1
		}
		return -1
	case "sawtooth":
		return float32(2*phase - 1)
	case "triangle":
		return float32(1 - 4*math.Abs(phase-0.5))
	default:
		return float32(math.Sin(2 * math.Pi * phase))
	}
}

type gainNode struct {
	node
	gain float64
}

func (g *gainNode) SetGain(value float64) {
	g.gain = value
	g.node.process = func(block []float32) []float32 {
		out := make([]float32, len(block))
		for i, s := range block {
			out[i] = s * float32(value)
		}
		return out
	}
}

type scriptProcessor struct {
	node
	size    int
	buffers chan []float32
}

func (p *scriptProcessor) handle(block []float32) []float32 {
	if len(block) > p.size {
		block = block[:p.size]
	}
	buf := append([]float32(nil), block...)
	select {
	case p.buffers <- buf:
	default:
	}
	return block
}

func (p *scriptProcessor) Buffers() <-chan []float32 { return p.buffers }
