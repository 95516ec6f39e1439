package synth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Patch is a declarative render patch: one SoundFont program playing a fixed
// list of notes.
//
//	soundfont: ../sf/gm.sf2
//	program: 25
//	gain: 0.8
//	notes:
//	  - {key: 60, velocity: 100, start: 0, duration: 0.5}
type Patch struct {
	SoundFont string  `yaml:"soundfont"`
	Program   int     `yaml:"program"`
	Channel   int     `yaml:"channel"`
	Gain      float64 `yaml:"gain"`
	Notes     []Note  `yaml:"notes"`

	// Path is the file the patch was read from.
	Path string `yaml:"-"`
}

// Note is a single MIDI note. Start and Duration are in seconds.
type Note struct {
	Key      int     `yaml:"key"`
	Velocity int     `yaml:"velocity"`
	Start    float64 `yaml:"start"`
	Duration float64 `yaml:"duration"`
}

// LoadPatch reads and validates a patch file. A missing gain means unity.
func LoadPatch(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	p := &Patch{Gain: 1}
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode patch %s: %w", path, err)
	}
	p.Path = path

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("patch %s: %w", path, err)
	}
	return p, nil
}

// SoundFontPath resolves the SoundFont relative to the patch file.
func (p *Patch) SoundFontPath() string {
	if filepath.IsAbs(p.SoundFont) {
		return p.SoundFont
	}
	return filepath.Join(filepath.Dir(p.Path), filepath.FromSlash(p.SoundFont))
}

func (p *Patch) validate() error {
	if p.SoundFont == "" {
		return errors.New("soundfont is required")
	}
	if p.Program < 0 || p.Program > 127 {
		return fmt.Errorf("program must be 0..127, got %d", p.Program)
	}
	if p.Channel < 0 || p.Channel > 15 {
		return fmt.Errorf("channel must be 0..15, got %d", p.Channel)
	}
	if p.Gain < 0 || math.IsNaN(p.Gain) {
		return fmt.Errorf("gain must not be negative, got %v", p.Gain)
	}
	for i, n := range p.Notes {
		if n.Key < 0 || n.Key > 127 {
			return fmt.Errorf("notes[%d]: key must be 0..127, got %d", i, n.Key)
		}
		if n.Velocity < 1 || n.Velocity > 127 {
			return fmt.Errorf("notes[%d]: velocity must be 1..127, got %d", i, n.Velocity)
		}
		if n.Start < 0 || n.Duration < 0 {
			return fmt.Errorf("notes[%d]: start and duration must not be negative", i)
		}
	}
	return nil
}

// noteEvent is a note scheduled in frames at a given sample rate.
type noteEvent struct {
	key, vel   int32
	start, end int
}

// schedule converts note times to frame offsets, rounding to the nearest
// frame. Notes shorter than one frame are dropped.
func (p *Patch) schedule(sampleRate int) []noteEvent {
	events := make([]noteEvent, 0, len(p.Notes))
	for _, n := range p.Notes {
		dur := int(math.Round(n.Duration * float64(sampleRate)))
		if dur <= 0 {
			continue
		}
		start := int(math.Round(n.Start * float64(sampleRate)))
		events = append(events, noteEvent{
			key:   int32(n.Key),
			vel:   int32(n.Velocity),
			start: start,
			end:   start + dur,
		})
	}
	return events
}
