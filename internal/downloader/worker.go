package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/octoftp/internal/utils"
)

const blockSize = 8192

var errShortTransfer = errors.New("unexpected end of data")

// Session is one control connection able to retrieve from an offset.
// *ftpconn.Conn satisfies it.
type Session interface {
	RetrieveFrom(path string, offset int64) (io.ReadCloser, error)
	Close() error
}

type DialFunc func(ctx context.Context) (Session, error)

// transition is how a single connection's transfer ended.
type transition int

const (
	transitionComplete transition = iota
	transitionRotate
	transitionStopped
)

func (t transition) String() string {
	switch t {
	case transitionComplete:
		return "complete"
	case transitionRotate:
		return "rotate"
	case transitionStopped:
		return "stopped"
	}
	return "unknown"
}

// chunkState holds a worker's counters. Only the worker writes them.
type chunkState struct {
	offset  atomic.Int64
	written atomic.Int64
	speed   atomic.Uint64
}

func (s *chunkState) Speed() float64 { return math.Float64frombits(s.speed.Load()) }

type worker struct {
	chunk          ChunkRange
	remote         string
	partPath       string
	dial           DialFunc
	control        *TransferControl
	rotateInterval time.Duration
	jitter         func() time.Duration
	onProgress     utils.ProgressFunc
	state          chunkState
	log            zerolog.Logger
}

func newWorker(chunk ChunkRange, remote, partPath string, dial DialFunc, control *TransferControl, rotateInterval time.Duration) *worker {
	w := &worker{
		chunk:          chunk,
		remote:         remote,
		partPath:       partPath,
		dial:           dial,
		control:        control,
		rotateInterval: rotateInterval,
		jitter:         uniformJitter(100*time.Millisecond, 500*time.Millisecond),
		log:            utils.GetLogger("chunk").With().Int("chunkId", chunk.Index).Logger(),
	}
	if w.rotateInterval <= 0 {
		w.rotateInterval = utils.DefaultRotateInterval
	}
	w.state.offset.Store(chunk.Start)
	return w
}

func uniformJitter(low, high time.Duration) func() time.Duration {
	return func() time.Duration {
		if high <= low {
			return low
		}
		return low + rand.N(high-low)
	}
}

func (w *worker) stopped(ctx context.Context) bool {
	return w.control.Cancelled() || ctx.Err() != nil
}

// run downloads the chunk into its part file, reconnecting on every rotation.
// A nil return means the chunk completed or the transfer was stopped.
func (w *worker) run(ctx context.Context) error {
	file, err := os.OpenFile(w.partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return &utils.WorkerError{Chunk: w.chunk.Index, Err: fmt.Errorf("error opening chunk file: %w", err)}
	}
	defer file.Close()

	rotations := 0
	for {
		if w.stopped(ctx) {
			w.log.Debug().Int64("offset", w.state.offset.Load()).Msg("Chunk stopped")
			return nil
		}
		if w.state.offset.Load() >= w.chunk.End {
			w.log.Debug().Int("rotations", rotations).Msg("Chunk complete")
			return nil
		}
		reason, err := w.transfer(ctx, file)
		if err != nil {
			if w.stopped(ctx) {
				w.log.Debug().Err(err).Msg("Transfer interrupted by stop")
				return nil
			}
			w.log.Error().Err(err).Int64("offset", w.state.offset.Load()).Msg("Chunk failed")
			return &utils.WorkerError{Chunk: w.chunk.Index, Err: err}
		}
		switch reason {
		case transitionComplete:
			w.log.Debug().Int("rotations", rotations).Int64("bytes", w.state.written.Load()).Msg("Chunk complete")
			return nil
		case transitionStopped:
			w.log.Debug().Int64("offset", w.state.offset.Load()).Msg("Chunk stopped")
			return nil
		case transitionRotate:
			rotations++
			w.log.Debug().Int64("offset", w.state.offset.Load()).Int("rotation", rotations).Msg("Rotating connection")
		}
	}
}

// transfer runs one connection: connect, jitter, REST at the current offset,
// RETR, then stream until the chunk end, the rotation deadline or a stop.
func (w *worker) transfer(ctx context.Context, file *os.File) (transition, error) {
	sess, err := w.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close()
	// unblocks a pending read when the download is stopped
	release := context.AfterFunc(ctx, func() { sess.Close() })
	defer release()

	if !sleepCtx(ctx, w.jitter()) || w.control.Cancelled() {
		return transitionStopped, nil
	}

	offset := w.state.offset.Load()
	reader, err := sess.RetrieveFrom(w.remote, offset)
	if err != nil {
		return 0, err
	}

	started := time.Now()
	var sessionBytes int64
	buf := make([]byte, blockSize)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if w.control.IsPaused() && !w.control.waitWhilePaused(ctx) {
				return transitionStopped, nil
			}
			if w.stopped(ctx) {
				return transitionStopped, nil
			}
			// at least one block per connection, so a short interval still progresses
			if sessionBytes > 0 && time.Since(started) >= w.rotateInterval {
				return transitionRotate, nil
			}
			data := buf[:n]
			if remaining := w.chunk.End - offset; int64(n) > remaining {
				data = data[:remaining]
			}
			if _, err := file.Write(data); err != nil {
				return 0, fmt.Errorf("error writing chunk file: %w", err)
			}
			offset += int64(len(data))
			sessionBytes += int64(len(data))
			w.state.offset.Store(offset)
			written := w.state.written.Add(int64(len(data)))
			speed := 0.0
			if elapsed := time.Since(started).Seconds(); elapsed > 0 {
				speed = float64(sessionBytes) / elapsed
			}
			w.state.speed.Store(math.Float64bits(speed))
			if w.onProgress != nil {
				w.onProgress(w.chunk.Index, written, speed)
			}
			if offset >= w.chunk.End {
				return transitionComplete, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				if err := reader.Close(); err != nil {
					return 0, err
				}
				return 0, errShortTransfer
			}
			return 0, readErr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
