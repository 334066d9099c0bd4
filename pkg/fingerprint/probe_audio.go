package fingerprint

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const (
	AudioUnavailable = "audio-unavailable"
	AudioDisabled    = "audio-disabled"

	DefaultAudioTimeout = 1000 * time.Millisecond

	audioBufferSize    = 4096
	audioSampleWindow  = 1000
	audioOscillatorWav = "triangle"
)

// audioGraph owns every node created for one probe run and tears them
// down exactly once.
type audioGraph struct {
	ctx        AudioContext
	oscillator Oscillator
	started    bool
	nodes      []AudioNode
	once       sync.Once
}

func (g *audioGraph) track(node AudioNode) {
	g.nodes = append(g.nodes, node)
}

func (g *audioGraph) cleanup(f *Fingerprinter) {
	g.once.Do(func() {
		if g.oscillator != nil && g.started {
			g.oscillator.Stop()
		}
		for _, node := range g.nodes {
			node.Disconnect()
		}
		if g.ctx.State() != AudioContextClosed {
			if err := g.ctx.Close(); err != nil {
				f.log.Debug("Audio context close failed", map[string]any{"error": err.Error()})
			}
		}
	})
}

// collectAudio runs a muted oscillator through an analysis graph and
// reduces the first processed buffer to a numeric signature.
func (f *Fingerprinter) collectAudio(ctx context.Context) string {
	if f.probes.Audio == nil {
		return AudioUnavailable
	}
	audioCtx, err := f.probes.Audio.NewContext(ctx)
	if err != nil || audioCtx == nil {
		return AudioUnavailable
	}

	graph := &audioGraph{ctx: audioCtx}
	defer graph.cleanup(f)

	processor, err := f.buildAudioGraph(graph)
	if err != nil {
		f.log.Debug("Audio graph setup failed", map[string]any{"error": err.Error()})
		return AudioUnavailable
	}

	select {
	case buffer, ok := <-processor.Buffers():
		if !ok {
			return AudioDisabled
		}
		return audioSignature(buffer)
	case <-f.clock.After(f.opts.AudioTimeout):
		return AudioDisabled
	case <-ctx.Done():
		return AudioDisabled
	}
}

// buildAudioGraph wires oscillator -> analyser -> processor -> gain(0)
// -> destination and starts the oscillator.
func (f *Fingerprinter) buildAudioGraph(graph *audioGraph) (ScriptProcessor, error) {
	audioCtx := graph.ctx

	oscillator, err := audioCtx.CreateOscillator()
	if err != nil {
		return nil, err
	}
	graph.oscillator = oscillator
	graph.track(oscillator)

	analyser, err := audioCtx.CreateAnalyser()
	if err != nil {
		return nil, err
	}
	graph.track(analyser)

	gain, err := audioCtx.CreateGain()
	if err != nil {
		return nil, err
	}
	graph.track(gain)

	processor, err := audioCtx.CreateScriptProcessor(audioBufferSize, 1, 1)
	if err != nil {
		return nil, err
	}
	graph.track(processor)

	gain.SetGain(0)
	oscillator.SetType(audioOscillatorWav)

	links := []struct{ from, to AudioNode }{
		{oscillator, analyser},
		{analyser, processor},
		{processor, gain},
		{gain, audioCtx.Destination()},
	}
	for _, link := range links {
		if err := link.from.Connect(link.to); err != nil {
			return nil, err
		}
	}

	if err := oscillator.Start(0); err != nil {
		return nil, err
	}
	graph.started = true
	return processor, nil
}

func audioSignature(buffer []float32) string {
	if len(buffer) > audioSampleWindow {
		buffer = buffer[:audioSampleWindow]
	}
	var sum float64
	for _, sample := range buffer {
		sum += float64(sample)
	}
	return strconv.FormatFloat(sum, 'g', -1, 64)
}
