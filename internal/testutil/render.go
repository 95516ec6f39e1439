package testutil

import (
	"fmt"
	"sync"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// DefaultBlockSize matches Pure Data's block size.
const DefaultBlockSize = 64

// FakeRenderer is an audio.RenderEngine that fills each rendered block with a
// constant value per patch.
//
// Logged operations:
//
//	open <patch>
//	configure <inputs> <outputs> <rate>
//	compute on|off
//	render <patch> <blocks>
//	close <patch>
type FakeRenderer struct {
	Log   *OpLog
	Block int

	// Values sets the sample value rendered for a patch (default 1).
	Values map[audio.PatchRef]float32
	// OpenErrors makes Open fail for a patch.
	OpenErrors map[audio.PatchRef]error
	// RenderCodes makes RenderBlocks return a status for a patch. The
	// buffer is still filled up to the first half of the requested blocks.
	RenderCodes map[audio.PatchRef]int
	// ConfigureError makes every ConfigureOffline call fail.
	ConfigureError error

	mu      sync.Mutex
	open    map[audio.PatchHandle]audio.PatchRef
	current audio.PatchRef
	next    audio.PatchHandle
	rate    int
	compute bool
}

// NewFakeRenderer creates a renderer with the default block size.
func NewFakeRenderer(log *OpLog) *FakeRenderer {
	return &FakeRenderer{
		Log:         log,
		Block:       DefaultBlockSize,
		Values:      make(map[audio.PatchRef]float32),
		OpenErrors:  make(map[audio.PatchRef]error),
		RenderCodes: make(map[audio.PatchRef]int),
		open:        make(map[audio.PatchHandle]audio.PatchRef),
	}
}

func (r *FakeRenderer) Open(ref audio.PatchRef) (audio.PatchHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Log.Add("open %s", ref)
	if err := r.OpenErrors[ref]; err != nil {
		return 0, err
	}
	r.next++
	r.open[r.next] = ref
	r.current = ref
	return r.next, nil
}

func (r *FakeRenderer) Close(h audio.PatchHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.open[h]
	if !ok {
		r.Log.Add("close ?%d", h)
		return fmt.Errorf("unknown patch handle %d", h)
	}
	r.Log.Add("close %s", ref)
	delete(r.open, h)
	if r.current == ref {
		r.current = ""
	}
	return nil
}

func (r *FakeRenderer) ConfigureOffline(inputs, outputs, sampleRate int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Log.Add("configure %d %d %d", inputs, outputs, sampleRate)
	if r.ConfigureError != nil {
		return r.ConfigureError
	}
	r.rate = sampleRate
	return nil
}

func (r *FakeRenderer) EnableCompute(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if on {
		r.Log.Add("compute on")
	} else {
		r.Log.Add("compute off")
	}
	r.compute = on
}

func (r *FakeRenderer) BlockSize() int {
	return r.Block
}

func (r *FakeRenderer) RenderBlocks(blocks int, in, out []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Log.Add("render %s %d", r.current, blocks)

	v, ok := r.Values[r.current]
	if !ok {
		v = 1
	}
	code := r.RenderCodes[r.current]

	n := blocks * r.Block
	if code != 0 {
		n = (blocks / 2) * r.Block
	}
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = v
	}
	return code
}

// SampleRate returns the rate of the last successful ConfigureOffline.
func (r *FakeRenderer) SampleRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// OpenCount returns the number of patches currently open.
func (r *FakeRenderer) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
