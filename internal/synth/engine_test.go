package synth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

type noteAction struct {
	key    int32
	on     bool
	sample int
}

type mockSynth struct {
	cur      int
	program  int32
	events   []noteAction
	lastRate int32
}

func (m *mockSynth) ProcessMidiMessage(channel int32, command int32, data1, data2 int32) {
	if command == midiProgramChange {
		m.program = data1
	}
}

func (m *mockSynth) NoteOn(channel, key, vel int32) {
	m.events = append(m.events, noteAction{key, true, m.cur})
}

func (m *mockSynth) NoteOff(channel, key int32) {
	m.events = append(m.events, noteAction{key, false, m.cur})
}

func (m *mockSynth) Render(left, right []float32) {
	for i := range left {
		left[i] = 1
		right[i] = 0.5
	}
	m.cur += len(left)
}

// useMockSynth replaces the synthesizer and SoundFont loader for one test.
func useMockSynth(t *testing.T) *mockSynth {
	t.Helper()
	ms := &mockSynth{}

	origSynth, origLoad := newSynthesizer, loadSoundFont
	newSynthesizer = func(_ *meltysynth.SoundFont, s *meltysynth.SynthesizerSettings) (synthesizer, error) {
		ms.lastRate = s.SampleRate
		return ms, nil
	}
	loadSoundFont = func(string) (*meltysynth.SoundFont, error) {
		return &meltysynth.SoundFont{}, nil
	}
	t.Cleanup(func() {
		newSynthesizer, loadSoundFont = origSynth, origLoad
	})
	return ms
}

func writePatch(t *testing.T, content string) audio.PatchRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return audio.PatchRef(path)
}

const twoNotes = `
soundfont: gm.sf2
program: 25
gain: 0.5
notes:
  - {key: 60, velocity: 100, start: 0, duration: 0.02}
  - {key: 64, velocity: 90, start: 0.01, duration: 0.02}
`

func TestEngine_RenderSchedulesAtBlockBoundaries(t *testing.T) {
	ms := useMockSynth(t)
	e := New(WithBlockSize(100))

	h, err := e.Open(writePatch(t, twoNotes))
	require.NoError(t, err)
	require.NoError(t, e.ConfigureOffline(0, 1, 10000))
	e.EnableCompute(true)

	// 0.01s at 10kHz = 100 frames = one block.
	out := make([]float32, 400)
	code := e.RenderBlocks(4, []float32{}, out)
	require.Equal(t, RenderOK, code)

	assert.Equal(t, int32(25), ms.program)
	assert.Equal(t, int32(10000), ms.lastRate)
	assert.Equal(t, []noteAction{
		{60, true, 0},
		{64, true, 100},
		{60, false, 200},
		{64, false, 300},
	}, ms.events)

	// (1 + 0.5) / 2 * 0.5
	assert.Equal(t, float32(0.375), out[0])
	assert.Equal(t, float32(0.375), out[399])
	require.NoError(t, e.Close(h))
}

func TestEngine_RetriggerInSameBlock(t *testing.T) {
	ms := useMockSynth(t)
	e := New(WithBlockSize(100))

	_, err := e.Open(writePatch(t, `
soundfont: gm.sf2
notes:
  - {key: 60, velocity: 100, start: 0, duration: 0.01}
  - {key: 60, velocity: 100, start: 0.01, duration: 0.01}
`))
	require.NoError(t, err)
	require.NoError(t, e.ConfigureOffline(0, 1, 10000))
	e.EnableCompute(true)

	require.Equal(t, RenderOK, e.RenderBlocks(3, nil, make([]float32, 300)))
	assert.Equal(t, []noteAction{
		{60, true, 0},
		{60, false, 100},
		{60, true, 100},
		{60, false, 200},
	}, ms.events)
}

func TestEngine_ComputeOffRendersSilence(t *testing.T) {
	ms := useMockSynth(t)
	e := New()

	_, err := e.Open(writePatch(t, twoNotes))
	require.NoError(t, err)
	require.NoError(t, e.ConfigureOffline(0, 1, 44100))

	out := []float32{9, 9, 9}
	out = append(out, make([]float32, DefaultBlockSize)...)
	require.Equal(t, RenderOK, e.RenderBlocks(1, nil, out))
	assert.Equal(t, float32(0), out[0])
	assert.Equal(t, float32(0), out[DefaultBlockSize-1])
	assert.Empty(t, ms.events)
}

func TestEngine_RenderErrorCodes(t *testing.T) {
	useMockSynth(t)

	t.Run("short buffer", func(t *testing.T) {
		e := New()
		assert.Equal(t, RenderShortBuffer, e.RenderBlocks(2, nil, make([]float32, DefaultBlockSize)))
	})

	t.Run("not configured", func(t *testing.T) {
		e := New()
		_, err := e.Open(writePatch(t, twoNotes))
		require.NoError(t, err)
		assert.Equal(t, RenderNotConfigured, e.RenderBlocks(1, nil, make([]float32, DefaultBlockSize)))
	})

	t.Run("no patch", func(t *testing.T) {
		e := New()
		require.NoError(t, e.ConfigureOffline(0, 1, 44100))
		assert.Equal(t, RenderNoPatch, e.RenderBlocks(1, nil, make([]float32, DefaultBlockSize)))
	})

	t.Run("closed patch", func(t *testing.T) {
		e := New()
		h, err := e.Open(writePatch(t, twoNotes))
		require.NoError(t, err)
		require.NoError(t, e.ConfigureOffline(0, 1, 44100))
		require.NoError(t, e.Close(h))
		assert.Equal(t, RenderNoPatch, e.RenderBlocks(1, nil, make([]float32, DefaultBlockSize)))
	})
}

func TestEngine_SynthInitFailure(t *testing.T) {
	useMockSynth(t)
	newSynthesizer = func(*meltysynth.SoundFont, *meltysynth.SynthesizerSettings) (synthesizer, error) {
		return nil, errors.New("bad settings")
	}

	e := New()
	_, err := e.Open(writePatch(t, twoNotes))
	require.NoError(t, err)
	require.NoError(t, e.ConfigureOffline(0, 1, 44100))
	e.EnableCompute(true)
	assert.Equal(t, RenderSynthFailed, e.RenderBlocks(1, nil, make([]float32, DefaultBlockSize)))
}

func TestEngine_ZeroBlocks(t *testing.T) {
	useMockSynth(t)
	e := New()
	_, err := e.Open(writePatch(t, twoNotes))
	require.NoError(t, err)
	require.NoError(t, e.ConfigureOffline(0, 1, 44100))
	e.EnableCompute(true)
	assert.Equal(t, RenderOK, e.RenderBlocks(0, nil, []float32{}))
}

func TestEngine_ConfigureOfflineRejectsChannels(t *testing.T) {
	e := New()
	assert.Error(t, e.ConfigureOffline(1, 1, 44100))
	assert.Error(t, e.ConfigureOffline(0, 2, 44100))
	assert.Error(t, e.ConfigureOffline(0, 1, 0))
	assert.NoError(t, e.ConfigureOffline(0, 1, 44100))
}

func TestEngine_OpenMissingPatch(t *testing.T) {
	e := New()
	_, err := e.Open(audio.PatchRef(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestEngine_OpenMissingSoundFont(t *testing.T) {
	// Real loader: the SoundFont file does not exist.
	e := New()
	_, err := e.Open(writePatch(t, twoNotes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load soundfont")
}

func TestEngine_SoundFontCached(t *testing.T) {
	useMockSynth(t)
	loads := 0
	loadSoundFont = func(string) (*meltysynth.SoundFont, error) {
		loads++
		return &meltysynth.SoundFont{}, nil
	}

	e := New()
	ref := writePatch(t, twoNotes)
	for i := 0; i < 3; i++ {
		h, err := e.Open(ref)
		require.NoError(t, err)
		require.NoError(t, e.Close(h))
	}
	assert.Equal(t, 1, loads)
}

func TestEngine_CloseUnknownHandle(t *testing.T) {
	e := New()
	assert.Error(t, e.Close(42))
}

func TestLoadPatch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing soundfont", "program: 1\n", "soundfont is required"},
		{"program range", "soundfont: a.sf2\nprogram: 128\n", "program must be"},
		{"channel range", "soundfont: a.sf2\nchannel: 16\n", "channel must be"},
		{"velocity range", "soundfont: a.sf2\nnotes:\n  - {key: 60, velocity: 0, start: 0, duration: 1}\n", "velocity must be"},
		{"negative start", "soundfont: a.sf2\nnotes:\n  - {key: 60, velocity: 1, start: -1, duration: 1}\n", "must not be negative"},
		{"unknown field", "soundfont: a.sf2\nvolume: 3\n", "field volume not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPatch(string(writePatch(t, tt.content)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPatch_DefaultsAndResolution(t *testing.T) {
	ref := writePatch(t, "soundfont: ../fonts/gm.sf2\n")
	p, err := LoadPatch(string(ref))
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Gain)
	assert.Equal(t, filepath.Join(filepath.Dir(filepath.Dir(string(ref))), "fonts", "gm.sf2"), p.SoundFontPath())
}
