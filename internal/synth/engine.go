// Package synth is an offline render engine backed by a SoundFont
// synthesizer. It implements audio.RenderEngine.
//
// Patches are YAML files (see Patch). Opening a patch loads its SoundFont,
// caching it by path for the engine's lifetime. RenderBlocks plays the most
// recently opened patch from frame 0, scheduling note events at block
// boundaries, and downmixes the stereo output to mono.
package synth

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// DefaultBlockSize is Pure Data's block size.
const DefaultBlockSize = 64

// Render status codes returned by RenderBlocks.
const (
	RenderOK            = 0
	RenderNoPatch       = 1
	RenderNotConfigured = 2
	RenderShortBuffer   = 3
	RenderSynthFailed   = 4
)

const midiProgramChange = 0xC0

// synthesizer abstracts the subset of meltysynth.Synthesizer used for rendering.
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1, data2 int32)
	NoteOn(channel, key, vel int32)
	NoteOff(channel, key int32)
	Render(left, right []float32)
}

// newSynthesizer constructs a meltysynth synthesizer. Tests may override this to
// inject a mock implementation.
var newSynthesizer = func(sf *meltysynth.SoundFont, settings *meltysynth.SynthesizerSettings) (synthesizer, error) {
	return meltysynth.NewSynthesizer(sf, settings)
}

// loadSoundFont reads and parses a SoundFont file. Tests may override it.
var loadSoundFont = func(path string) (*meltysynth.SoundFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return meltysynth.NewSoundFont(bytes.NewReader(data))
}

// Engine renders patches offline.
//
// Engine is not safe for concurrent use; the baking scheduler is its only
// caller while a batch runs.
type Engine struct {
	blockSize int
	logger    *slog.Logger

	fontsMu sync.Mutex
	fonts   map[string]*meltysynth.SoundFont

	patches map[audio.PatchHandle]*Patch
	current audio.PatchHandle
	next    audio.PatchHandle

	sampleRate int
	configured bool
	compute    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBlockSize sets the frames produced per render step. Default: 64.
func WithBlockSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.blockSize = n
		}
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine with no open patches.
func New(opts ...Option) *Engine {
	e := &Engine{
		blockSize: DefaultBlockSize,
		logger:    slog.Default(),
		fonts:     make(map[string]*meltysynth.SoundFont),
		patches:   make(map[audio.PatchHandle]*Patch),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open loads the patch file at ref and its SoundFont.
func (e *Engine) Open(ref audio.PatchRef) (audio.PatchHandle, error) {
	p, err := LoadPatch(string(ref))
	if err != nil {
		return 0, err
	}
	if _, err := e.soundFont(p.SoundFontPath()); err != nil {
		return 0, err
	}

	e.next++
	e.patches[e.next] = p
	e.current = e.next
	e.logger.Debug("patch opened", "patch", string(ref), "handle", int(e.next), "notes", len(p.Notes))
	return e.next, nil
}

// Close releases an open patch.
func (e *Engine) Close(h audio.PatchHandle) error {
	if _, ok := e.patches[h]; !ok {
		return fmt.Errorf("close patch: unknown handle %d", h)
	}
	delete(e.patches, h)
	if e.current == h {
		e.current = 0
	}
	return nil
}

// ConfigureOffline accepts only a mono output context with no inputs.
func (e *Engine) ConfigureOffline(inputs, outputs, sampleRate int) error {
	if inputs != 0 || outputs != 1 {
		return fmt.Errorf("configure offline: want 0 inputs and 1 output, got %d and %d", inputs, outputs)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("configure offline: sample rate must be positive, got %d", sampleRate)
	}
	e.sampleRate = sampleRate
	e.configured = true
	return nil
}

// EnableCompute switches synthesis on or off. Off renders silence.
func (e *Engine) EnableCompute(on bool) {
	e.compute = on
}

// BlockSize is the number of frames per render step.
func (e *Engine) BlockSize() int {
	return e.blockSize
}

// RenderBlocks renders blocks*BlockSize() mono frames of the current patch
// into out. in is ignored. Returns one of the Render* codes.
func (e *Engine) RenderBlocks(blocks int, in, out []float32) int {
	frames := blocks * e.blockSize
	if len(out) < frames {
		return RenderShortBuffer
	}
	if !e.configured {
		return RenderNotConfigured
	}
	p, ok := e.patches[e.current]
	if !ok {
		return RenderNoPatch
	}

	if !e.compute {
		clear(out[:frames])
		return RenderOK
	}

	sf, err := e.soundFont(p.SoundFontPath())
	if err != nil {
		e.logger.Error("soundfont unavailable", "patch", p.Path, "error", err)
		return RenderSynthFailed
	}

	settings := meltysynth.NewSynthesizerSettings(int32(e.sampleRate))
	settings.BlockSize = int32(e.blockSize)

	// A fresh synthesizer per render keeps tasks independent.
	syn, err := newSynthesizer(sf, settings)
	if err != nil {
		e.logger.Error("synthesizer init failed", "patch", p.Path, "error", err)
		return RenderSynthFailed
	}

	ch := int32(p.Channel)
	syn.ProcessMidiMessage(ch, midiProgramChange, int32(p.Program), 0)

	events := p.schedule(e.sampleRate)
	active := make(map[int32]bool)
	left := make([]float32, e.blockSize)
	right := make([]float32, e.blockSize)
	gain := float32(p.Gain)

	for b := 0; b < blocks; b++ {
		start := b * e.blockSize
		end := start + e.blockSize

		// Note-offs first so a retrigger in the same block fires.
		for _, ev := range events {
			if ev.end >= start && ev.end < end && active[ev.key] {
				syn.NoteOff(ch, ev.key)
				active[ev.key] = false
			}
		}
		for _, ev := range events {
			if ev.start >= start && ev.start < end && !active[ev.key] {
				syn.NoteOn(ch, ev.key, ev.vel)
				active[ev.key] = true
			}
		}

		syn.Render(left, right)
		for i := 0; i < e.blockSize; i++ {
			out[start+i] = (left[i] + right[i]) * 0.5 * gain
		}
	}
	return RenderOK
}

// soundFont returns a cached SoundFont, loading it on first use.
func (e *Engine) soundFont(path string) (*meltysynth.SoundFont, error) {
	e.fontsMu.Lock()
	defer e.fontsMu.Unlock()

	if sf, ok := e.fonts[path]; ok {
		return sf, nil
	}
	sf, err := loadSoundFont(path)
	if err != nil {
		return nil, fmt.Errorf("load soundfont %s: %w", path, err)
	}
	e.fonts[path] = sf
	e.logger.Debug("soundfont loaded", "path", path)
	return sf, nil
}
