// Package audio declares the engine contracts shared by the baking scheduler
// and the concrete engines that implement them.
//
// Two collaborators are involved in every bake:
//
//   - RenderEngine: an offline synthesis engine that opens a patch, is
//     configured for an offline context and renders whole blocks of samples.
//   - SharedEngine: the real-time engine that owns the destination arrays.
//     It is paused for the full batch and resumed afterward.
//
// Neither collaborator is reentrant. Callers hand one instance of each to the
// scheduler, which is then the only user until the batch completes.
package audio

import "errors"

// ErrArraySizeUnavailable is returned by SharedEngine.ArraySize when the
// engine cannot report array capacity locally (remote mode).
var ErrArraySizeUnavailable = errors.New("array size unavailable")

// PatchRef identifies a patch resolvable by RenderEngine.Open.
// For file-backed engines it is a path.
type PatchRef string

// PatchHandle references an open patch instance.
type PatchHandle int

// RenderEngine renders patches offline, one block at a time.
type RenderEngine interface {
	// Open instantiates the patch and returns a handle to it.
	Open(ref PatchRef) (PatchHandle, error)

	// Close releases an open patch.
	Close(h PatchHandle) error

	// ConfigureOffline sets channel counts and sample rate for the offline context.
	ConfigureOffline(inputs, outputs, sampleRate int) error

	// EnableCompute switches audio computation on or off.
	EnableCompute(on bool)

	// BlockSize is the number of frames produced per render step.
	BlockSize() int

	// RenderBlocks renders blocks*BlockSize() frames into out.
	// Returns 0 on success and an engine-specific code otherwise.
	RenderBlocks(blocks int, in, out []float32) int
}

// SharedEngine is the real-time engine owning named waveform arrays.
type SharedEngine interface {
	Pause() error
	Resume() error

	// ArraySize reports the capacity of the named array.
	// Returns ErrArraySizeUnavailable when capacity cannot be queried.
	ArraySize(name string) (int, error)

	// WriteArray copies buf[bufOffset:bufOffset+length] into the named array
	// starting at offset.
	WriteArray(name string, offset int, buf []float32, bufOffset, length int) error
}
