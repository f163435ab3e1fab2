//go:build windows

package scheduler

import (
	"os"
	"os/signal"

	"github.com/tanq16/octoftp/internal/utils"
)

// handleSignals stops all downloads on interrupt. Windows has no signal for
// pause toggling.
func (s *Scheduler) handleSignals() func() {
	log := utils.GetLogger("scheduler")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
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
