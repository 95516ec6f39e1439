// Package playback plays baked tables on the default audio device.
//
// Build with -tags headless to replace the device with a stub, for CI
// machines without audio hardware.
package playback

import (
	"encoding/binary"
	"io"
	"math"
)

// tableReader streams mono float32 samples as little-endian bytes, the
// layout oto expects for FormatFloat32LE.
type tableReader struct {
	samples []float32
	pos     int
}

func newTableReader(samples []float32) *tableReader {
	return &tableReader{samples: samples}
}

func (r *tableReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.samples) {
		return 0, io.EOF
	}
	n := 0
	for n+4 <= len(p) && r.pos < len(r.samples) {
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(r.samples[r.pos]))
		r.pos++
		n += 4
	}
	return n, nil
}

// remaining is the number of samples not yet read.
func (r *tableReader) remaining() int {
	return len(r.samples) - r.pos
}

// Resample converts a mono table recorded at from Hz to to Hz by linear
// interpolation. The table is returned unchanged when the rates match.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}
