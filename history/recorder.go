package history

import (
	"context"
	"sync"
	"time"

	"github.com/elijahnyp/stairway_controller/stairway"
	. "github.com/elijahnyp/stairway_controller/util"
)

const queueSize = 64

// Recorder stores completed waves from the sequencer's change stream on its own
// goroutine so the wave never waits on the database.
type Recorder struct {
	repo  *WaveRepository
	queue chan stairway.Wave
	wg    sync.WaitGroup
}

func NewRecorder(repo *WaveRepository) *Recorder {
	return &Recorder{repo: repo, queue: make(chan stairway.Wave, queueSize)}
}

// Observe is a stairway change subscriber. Waves are dropped when the queue is full.
func (r *Recorder) Observe(c stairway.Change) {
	if c.Property != stairway.PropWave {
		return
	}
	wave, ok := c.Value.(stairway.Wave)
	if !ok {
		return
	}
	select {
	case r.queue <- wave:
	default:
		Logger.Warn().Msg("wave history queue full, dropping wave")
	}
}

// Start saves queued waves and sweeps expired ones every interval until ctx
// ends. A zero retention keeps everything.
func (r *Recorder) Start(ctx context.Context, retention, interval time.Duration) {
	r.wg.Add(1)
	go r.run(ctx, retention, interval)
}

func (r *Recorder) run(ctx context.Context, retention, interval time.Duration) {
	defer r.wg.Done()

	var sweep <-chan time.Time
	if retention > 0 && interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case wave := <-r.queue:
			r.save(ctx, wave)
		case <-sweep:
			n, err := r.repo.DeleteOlderThan(ctx, retention)
			if err != nil {
				Logger.Error().Msgf("wave history sweep failed: %v", err)
				continue
			}
			if n > 0 {
				Logger.Debug().Msgf("wave history sweep removed %d waves", n)
			}
		}
	}
}

func (r *Recorder) save(ctx context.Context, wave stairway.Wave) {
	id, err := r.repo.SaveWave(ctx, wave)
	if err != nil {
		Logger.Error().Msgf("unable to store wave: %v", err)
		return
	}
	Logger.Trace().Msgf("stored wave %d (%v)", id, wave.Direction)
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case wave := <-r.queue:
			r.save(ctx, wave)
		default:
			return
		}
	}
}

// Wait blocks until the recorder has stopped and flushed its queue.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
