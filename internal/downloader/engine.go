// Package downloader implements segmented FTP downloads: a file is split into
// byte ranges, each fetched by its own worker over periodically rotated
// connections, then the parts are reassembled in order.
package downloader

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/octoftp/internal/ftpconn"
	"github.com/tanq16/octoftp/internal/lister"
	"github.com/tanq16/octoftp/internal/utils"
)

var ErrDownloadActive = errors.New("a download is already in progress")

// Engine runs listings, size queries and one download at a time against a
// single server. Listing and size calls use a fresh connection each.
type Engine struct {
	target      utils.ServerTarget
	connOpts    []ftpconn.Option
	jitterLow   time.Duration
	jitterHigh  time.Duration
	stopTimeout time.Duration
	maxSpeed    float64
	log         zerolog.Logger

	mu     sync.Mutex
	active *activeDownload
}

type activeDownload struct {
	id          string
	control     *TransferControl
	cancel      context.CancelFunc
	done        chan struct{}
	destination string
	// finished is set once the destination is fully assembled
	finished atomic.Bool
}

type Option func(*Engine)

func WithConnOptions(opts ...ftpconn.Option) Option {
	return func(e *Engine) {
		e.connOpts = append(e.connOpts, opts...)
	}
}

// WithReconnectJitter sets the random delay range applied after every
// worker connect.
func WithReconnectJitter(low, high time.Duration) Option {
	return func(e *Engine) {
		e.jitterLow, e.jitterHigh = low, high
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stopTimeout = d
	}
}

// WithMaxSpeed records a speed limit in bytes/s. It is carried for callers
// but not enforced.
func WithMaxSpeed(bytesPerSecond float64) Option {
	return func(e *Engine) {
		e.maxSpeed = bytesPerSecond
	}
}

func NewEngine(target utils.ServerTarget, opts ...Option) *Engine {
	e := &Engine{
		target:      target,
		jitterLow:   100 * time.Millisecond,
		jitterHigh:  500 * time.Millisecond,
		stopTimeout: utils.DefaultStopTimeout,
		log:         utils.GetLogger("engine").With().Str("host", target.Host).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) connect(ctx context.Context) (*ftpconn.Conn, error) {
	return ftpconn.Dial(ctx, e.target, e.connOpts...)
}

func (e *Engine) dialSession(ctx context.Context) (Session, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TestConnection reports whether the server accepts the configured login,
// with the welcome banner on success or the error text on failure.
func (e *Engine) TestConnection(ctx context.Context) (bool, string) {
	conn, err := e.connect(ctx)
	if err != nil {
		return false, err.Error()
	}
	welcome := conn.Welcome()
	if err := conn.Quit(); err != nil {
		e.log.Debug().Err(err).Msg("Error closing connection")
	}
	return true, welcome
}

func (e *Engine) ListDirectory(ctx context.Context, path string) ([]utils.FileEntry, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			e.log.Debug().Err(err).Msg("Error closing connection")
		}
	}()
	if dir, err := conn.CurrentDir(); err == nil {
		e.log.Debug().Str("pwd", dir).Msg("Connected")
	}
	return lister.List(conn, path)
}

// ListRecursive returns every file below path, depth-first.
func (e *Engine) ListRecursive(ctx context.Context, path string) ([]utils.FileEntry, error) {
	return lister.Recursive(func(p string) ([]utils.FileEntry, error) {
		return e.ListDirectory(ctx, p)
	}, path)
}

// FileSize returns the size of path. A missing, unreportable or zero size
// is a *utils.SizeError.
func (e *Engine) FileSize(ctx context.Context, path string) (int64, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return 0, &utils.SizeError{Path: path, Err: err}
	}
	defer conn.Quit()
	size, err := conn.Size(path)
	if err != nil {
		var protoErr *ftpconn.ProtocolError
		if errors.As(err, &protoErr) && protoErr.Code == 550 {
			return 0, &utils.SizeError{Path: path, Err: errors.Join(utils.ErrNotFound, err)}
		}
		return 0, &utils.SizeError{Path: path, Err: err}
	}
	if size <= 0 {
		return 0, &utils.SizeError{Path: path, Err: utils.ErrEmptyFile}
	}
	return size, nil
}

func (e *Engine) current() *activeDownload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) Pause() {
	if ad := e.current(); ad != nil {
		ad.control.Pause()
		e.log.Info().Str("download", ad.id).Msg("Download paused")
	}
}

func (e *Engine) Resume() {
	if ad := e.current(); ad != nil {
		ad.control.Resume()
		e.log.Info().Str("download", ad.id).Msg("Download resumed")
	}
}

func (e *Engine) IsPaused() bool {
	if ad := e.current(); ad != nil {
		return ad.control.IsPaused()
	}
	return false
}

// Stop cancels the active download, waits up to the stop timeout for its
// workers, then removes its part files and destination. A download that has
// already assembled its destination keeps it.
func (e *Engine) Stop() {
	ad := e.current()
	if ad == nil {
		return
	}
	log := e.log.With().Str("download", ad.id).Logger()
	// a paused worker must not stay blocked in its poll loop
	ad.control.Resume()
	ad.control.Cancel()
	ad.cancel()

	select {
	case <-ad.done:
	case <-time.After(e.stopTimeout):
		log.Warn().Dur("timeout", e.stopTimeout).Msg("Workers did not exit before stop timeout")
	}
	if ad.finished.Load() {
		log.Info().Str("output", ad.destination).Msg("Download already complete, nothing to clean up")
		return
	}
	removed, err := utils.CleanParts(ad.destination)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to remove part files")
	}
	if err := os.Remove(ad.destination); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to remove partial destination")
	}
	log.Info().Int("parts", removed).Msg("Download stopped and cleaned up")
}
