//go:build !headless

package playback

import (
	"context"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player plays mono float32 tables through oto.
//
// oto allows one context per process; create a single Player and reuse it.
type Player struct {
	ctx        *oto.Context
	sampleRate int
}

// New opens the default audio device at sampleRate.
func New(sampleRate int) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	return &Player{ctx: ctx, sampleRate: sampleRate}, nil
}

// SampleRate is the device rate the player was opened with.
func (p *Player) SampleRate() int {
	return p.sampleRate
}

// Play blocks until samples have played or ctx is done. Tables baked at a
// rate other than the device rate are resampled first.
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	samples = Resample(samples, sampleRate, p.sampleRate)
	if len(samples) == 0 {
		return nil
	}

	player := p.ctx.NewPlayer(newTableReader(samples))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}
