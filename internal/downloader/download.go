package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/octoftp/internal/utils"
)

// Download fetches remote into local over connections workers, rotating each
// worker's connection every rotateInterval. onComplete is called exactly once
// and the same result is returned. A stopped download reports "cancelled" and
// leaves its part files for Stop to remove.
func (e *Engine) Download(ctx context.Context, remote, local string, connections int, rotateInterval time.Duration, onProgress utils.ProgressFunc, onComplete utils.CompleteFunc) utils.DownloadResult {
	if connections < 1 {
		connections = utils.DefaultConnections
	}
	if rotateInterval <= 0 {
		rotateInterval = utils.DefaultRotateInterval
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ad := &activeDownload{
		id:          uuid.NewString(),
		control:     &TransferControl{},
		cancel:      cancel,
		done:        make(chan struct{}),
		destination: local,
	}
	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		if onComplete != nil {
			onComplete(false, ErrDownloadActive.Error())
		}
		return utils.DownloadResult{Success: false, Message: ErrDownloadActive.Error()}
	}
	e.active = ad
	e.mu.Unlock()
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			e.mu.Lock()
			if e.active == ad {
				e.active = nil
			}
			e.mu.Unlock()
			close(ad.done)
		})
	}
	defer release()
	// the download is no longer active once onComplete runs, so controls
	// issued from the callback are no-ops
	finish := func(success bool, message string) utils.DownloadResult {
		if success {
			ad.finished.Store(true)
		}
		release()
		if onComplete != nil {
			onComplete(success, message)
		}
		return utils.DownloadResult{Success: success, Message: message}
	}
	// cancelling the caller's context counts as a stop
	stopOnCancel := context.AfterFunc(ctx, ad.control.Cancel)
	defer stopOnCancel()

	log := e.log.With().Str("download", ad.id).Str("remote", remote).Logger()
	if e.maxSpeed > 0 {
		log.Warn().Float64("maxSpeed", e.maxSpeed).Msg("Speed limit is not enforced")
	}

	size, err := e.FileSize(runCtx, remote)
	if err != nil {
		if ad.control.Cancelled() {
			return finish(false, "cancelled")
		}
		log.Error().Err(err).Msg("Failed to get file size")
		return finish(false, err.Error())
	}
	plan, err := PlanChunks(size, connections)
	if err != nil {
		return finish(false, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return finish(false, fmt.Sprintf("error creating output directory: %v", err))
	}
	log.Info().Int64("size", size).Int("chunks", len(plan)).Dur("rotate", rotateInterval).Msg("Starting segmented download")

	start := time.Now()
	errs := make([]error, len(plan))
	var wg sync.WaitGroup
	for i, chunk := range plan {
		w := newWorker(chunk, remote, utils.PartPath(local, chunk.Index), e.dialSession, ad.control, rotateInterval)
		w.jitter = uniformJitter(e.jitterLow, e.jitterHigh)
		w.onProgress = onProgress
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.run(runCtx); err != nil {
				errs[i] = err
				// abort the remaining workers; this is not a user stop
				cancel()
			}
		}()
	}
	wg.Wait()

	if ad.control.Cancelled() {
		log.Info().Msg("Download cancelled")
		return finish(false, "cancelled")
	}
	if err := errors.Join(errs...); err != nil {
		removeParts(log, plan, local)
		return finish(false, fmt.Sprintf("download failed: %v", err))
	}
	if err := assemble(log, plan, local, size, ad.control); err != nil {
		removeParts(log, plan, local)
		os.Remove(local)
		if errors.Is(err, errAssemblyStopped) {
			log.Info().Msg("Download cancelled during assembly")
			return finish(false, "cancelled")
		}
		return finish(false, fmt.Sprintf("error assembling file: %v", err))
	}
	log.Info().Str("output", local).Dur("elapsed", time.Since(start)).Msg("Download complete")
	return finish(true, local)
}

var errAssemblyStopped = errors.New("assembly stopped")

// assemble concatenates part files in index order into destination, removing
// each part once copied. A stop between parts aborts with errAssemblyStopped.
func assemble(log zerolog.Logger, plan []ChunkRange, destination string, size int64, control *TransferControl) error {
	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer out.Close()

	var total int64
	for _, chunk := range plan {
		if control.Cancelled() {
			return errAssemblyStopped
		}
		partPath := utils.PartPath(destination, chunk.Index)
		part, err := os.Open(partPath)
		if err != nil {
			return fmt.Errorf("error opening chunk file %s: %w", partPath, err)
		}
		written, err := io.Copy(out, part)
		part.Close()
		if err != nil {
			return fmt.Errorf("error copying chunk data: %w", err)
		}
		if written != chunk.Len() {
			return fmt.Errorf("chunk %d has %d bytes, expected %d", chunk.Index, written, chunk.Len())
		}
		total += written
		if err := os.Remove(partPath); err != nil {
			log.Warn().Err(err).Str("file", partPath).Msg("Failed to remove chunk file")
		}
	}
	if total != size {
		return fmt.Errorf("total written bytes (%d) doesn't match file size (%d)", total, size)
	}
	log.Debug().Int64("totalBytes", total).Str("outputFile", destination).Msg("File assembly completed")
	return out.Close()
}

func removeParts(log zerolog.Logger, plan []ChunkRange, destination string) {
	for _, chunk := range plan {
		partPath := utils.PartPath(destination, chunk.Index)
		if err := os.Remove(partPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", partPath).Msg("Failed to remove chunk file")
		}
	}
}
