package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tanq16/octoftp/internal/checksum"
	"github.com/tanq16/octoftp/internal/downloader"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/utils"
)

// Options configure a scheduler run.
type Options struct {
	Target  utils.ServerTarget
	Workers int
	// Force overwrites existing destinations instead of picking a new name.
	Force         bool
	EngineOptions []downloader.Option
	// Display enables the live terminal view; otherwise only logs are written.
	Display bool
}

// Scheduler runs download jobs, numWorkers files at a time, each with its
// own engine. Stop and TogglePause act on every engine currently running.
type Scheduler struct {
	opts    Options
	mgr     *output.Manager
	mu      sync.Mutex
	engines map[string]*downloader.Engine
	cancel  context.CancelFunc
	stopped atomic.Bool
	paused  atomic.Bool
}

func New(opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scheduler{
		opts:    opts,
		mgr:     output.NewManager(),
		engines: make(map[string]*downloader.Engine),
	}
}

// Manager exposes the output manager, e.g. to redirect it in tests.
func (s *Scheduler) Manager() *output.Manager { return s.mgr }

// Run executes every job and returns an error summarising failures.
func (s *Scheduler) Run(ctx context.Context, jobs []utils.DownloadJob) error {
	log := utils.GetLogger("scheduler")
	log.Info().Int("jobs", len(jobs)).Int("workers", s.opts.Workers).Msg("Starting downloads")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.opts.Display {
		s.mgr.StartDisplay()
	}
	stopSignals := s.handleSignals()
	defer stopSignals()

	jobCh := make(chan utils.DownloadJob, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		jobCh <- job
	}
	close(jobCh)

	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobCh {
				if err := s.processJob(ctx, job); err != nil {
					failures.Add(1)
					log.Error().Err(err).Int("workerID", workerID).Str("remote", job.RemotePath).Msg("Job failed")
				}
			}
		}(i)
	}
	wg.Wait()

	if s.opts.Display {
		s.mgr.StopDisplay()
		s.mgr.ShowSummary()
	}
	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d downloads failed", n, len(jobs))
	}
	return nil
}

func (s *Scheduler) register(id string, e *downloader.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[id] = e
	if s.paused.Load() {
		e.Pause()
	}
}

func (s *Scheduler) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.engines, id)
}

// Stop stops every running download and skips queued ones.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	engines := make([]*downloader.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	cancel := s.cancel
	s.mu.Unlock()
	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Stop()
		}()
	}
	wg.Wait()
	// jobs between their size query and download start
	if cancel != nil {
		cancel()
	}
}

// TogglePause pauses or resumes every running download and reports the new
// state.
func (s *Scheduler) TogglePause() bool {
	paused := !s.paused.Load()
	s.paused.Store(paused)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.engines {
		if paused {
			e.Pause()
		} else {
			e.Resume()
		}
	}
	s.mgr.SetPaused(paused)
	return paused
}

func (s *Scheduler) processJob(ctx context.Context, job utils.DownloadJob) error {
	name := filepath.Base(job.OutputPath)
	id := s.mgr.Register(name)
	log := utils.GetLogger("scheduler").With().Str("job", job.ID).Str("remote", job.RemotePath).Logger()
	fail := func(err error) error {
		s.mgr.ReportError(id, err)
		return err
	}
	if s.stopped.Load() {
		return fail(errors.New("cancelled"))
	}

	opts := append([]downloader.Option{}, s.opts.EngineOptions...)
	if job.MaxSpeed > 0 {
		opts = append(opts, downloader.WithMaxSpeed(job.MaxSpeed))
	}
	engine := downloader.NewEngine(s.opts.Target, opts...)
	s.register(job.ID, engine)
	defer s.unregister(job.ID)

	s.mgr.SetMessage(id, fmt.Sprintf("Querying size of %s", job.RemotePath))
	size, err := engine.FileSize(ctx, job.RemotePath)
	if err != nil {
		return fail(err)
	}
	if s.stopped.Load() {
		return fail(errors.New("cancelled"))
	}

	outputPath := job.OutputPath
	if _, err := os.Stat(outputPath); err == nil && !s.opts.Force {
		outputPath = utils.RenewOutputPath(outputPath)
		log.Debug().Str("output", outputPath).Msg("Destination exists, using new name")
	}
	if plan, err := downloader.PlanChunks(size, job.Connections); err == nil {
		sizes := make([]int64, len(plan))
		for i, r := range plan {
			sizes[i] = r.Len()
		}
		s.mgr.SetChunks(id, sizes)
	}

	s.mgr.SetStatus(id, "active")
	s.mgr.SetMessage(id, fmt.Sprintf("Downloading %s (%s)", name, output.FormatBytes(uint64(size))))
	start := time.Now()
	result := engine.Download(ctx, job.RemotePath, outputPath, job.Connections, job.RotateInterval,
		func(threadID int, downloaded int64, speed float64) {
			s.mgr.UpdateChunk(id, threadID, downloaded, speed)
		}, nil)
	if !result.Success {
		return fail(errors.New(result.Message))
	}
	elapsed := time.Since(start)
	summary := fmt.Sprintf("Downloaded %s (%s in %s, avg %s)", filepath.Base(outputPath), output.FormatBytes(uint64(size)),
		elapsed.Round(time.Millisecond), output.FormatSpeed(output.AverageSpeed(size, elapsed.Seconds())))

	if job.Checksum != "" && job.Checksum != "none" {
		s.mgr.SetMessage(id, fmt.Sprintf("Computing %s of %s", job.Checksum, name))
		digest, err := checksum.Compute(outputPath, job.Checksum, nil)
		if err != nil {
			return fail(err)
		}
		if job.ExpectedDigest != "" && !checksum.Verify(outputPath, job.ExpectedDigest, digest.Algorithm) {
			return fail(fmt.Errorf("checksum mismatch for %s: expected %s, got %s", outputPath, job.ExpectedDigest, digest.Hex))
		}
		summary += fmt.Sprintf(" %s %s", digest.Algorithm, digest.Hex)
		log.Info().Str("algorithm", digest.Algorithm).Str("digest", digest.Hex).Msg("Checksum computed")
	}
	log.Info().Str("output", outputPath).Dur("elapsed", elapsed).Msg("Download complete")
	s.mgr.Complete(id, summary)
	return nil
}
