// Package sweep physically removes expired snippets on a timer. Clients
// never observe the timing: every read path already filters expired rows.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Manojseetaram/code-share-clone/internal/store"
)

type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: time.Hour}
}

type Service struct {
	store  *store.Store
	config Config
	logger *slog.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(st *store.Store, config Config, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("sweeper started", slog.Duration("interval", s.config.Interval))
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	n, err := s.store.PurgeExpired(context.Background())
	if err != nil {
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("removed expired snippets", slog.Int64("count", n))
	}
}

// SweepNow runs a single pass outside the schedule and reports how many
// rows it removed.
func (s *Service) SweepNow() (int64, error) {
	return s.store.PurgeExpired(context.Background())
}
