package services

import (
	"context"
	"errors"
	"time"
)

// Start runs RefreshAll every interval until Stop, Close or ctx cancellation.
// Returns an error if the loop is already running or the interval is not positive.
func (s *SyncService) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	if s.isClosed() {
		return ErrClosed
	}

	s.loopMu.Lock()
	if s.running {
		s.loopMu.Unlock()
		return errors.New("refresh loop is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.loopMu.Unlock()

	go s.runLoop(ctx, interval, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Refresh loop started", "interval", interval)
	return nil
}

// Stop ends the refresh loop and waits for the current pass to finish.
func (s *SyncService) Stop() {
	s.stopLoop()
}

// IsRunning returns whether the refresh loop is active
func (s *SyncService) IsRunning() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.running
}

func (s *SyncService) stopLoop() {
	s.loopMu.Lock()
	if !s.running {
		s.loopMu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.loopMu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *SyncService) runLoop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			s.loopMu.Lock()
			if s.stopCh == stopCh {
				s.running = false
			}
			s.loopMu.Unlock()
			return
		case <-ticker.C:
			if _, err := s.RefreshAll(ctx); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.WarnContext(ctx, "Periodic refresh failed", "error", err)
			}
		}
	}
}
