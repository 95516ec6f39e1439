//go:build headless

package playback

import (
	"context"
	"io"
)

// Player discards samples.
type Player struct {
	sampleRate int
}

func New(sampleRate int) (*Player, error) {
	return &Player{sampleRate: sampleRate}, nil
}

func (p *Player) SampleRate() int {
	return p.sampleRate
}

func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, newTableReader(Resample(samples, sampleRate, p.sampleRate)))
	return err
}
