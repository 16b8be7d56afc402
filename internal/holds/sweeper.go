package holds

import (
	"context"
	"time"

	"seatly/pkg/logger"
)

// Sweeper periodically expires lapsed holds so their rows reach a terminal
// state. Correctness never depends on it running; admission and reads check
// expiry inline. The sweeper bounds how long stale rows linger.
type Sweeper struct {
	service  Service
	interval time.Duration
	logger   *logger.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(service Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger.GetDefault(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine
func (s *Sweeper) Start() {
	go s.run()
	s.logger.WithFields(map[string]interface{}{
		"interval": s.interval.String(),
	}).Info("Hold sweeper started")
}

// Stop signals the loop and waits for the in-flight sweep to finish
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("Hold sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	count, err := s.service.ExpireStale(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Hold sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithFields(map[string]interface{}{
			"expired_holds": count,
		}).Info("Swept expired holds")
	}
}
