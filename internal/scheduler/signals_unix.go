//go:build !windows

package scheduler

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/tanq16/octoftp/internal/utils"
)

// handleSignals stops all downloads on SIGINT or SIGTERM and toggles pause
// on SIGUSR1. The returned func detaches the handler.
func (s *Scheduler) handleSignals() func() {
	log := utils.GetLogger("scheduler")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGUSR1 {
					log.Info().Bool("paused", s.TogglePause()).Msg("Pause toggled")
					continue
				}
				log.Warn().Str("signal", sig.String()).Msg("Stopping downloads")
				s.Stop()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
