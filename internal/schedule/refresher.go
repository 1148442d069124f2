// Package schedule runs periodic maintenance jobs on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/joingate/internal/channels"
)

// DefaultRefreshSchedule re-checks bot rights every half hour.
const DefaultRefreshSchedule = "@every 30m"

// RightsChecker reports whether the bot is an administrator of a channel.
type RightsChecker interface {
	IsBotAdmin(ctx context.Context, channelID string) (bool, error)
}

// Report summarises one sweep over the registry.
type Report struct {
	Checked int
	Changed int
	Failed  int
}

// Service re-checks the bot's admin rights in every registered channel.
type Service struct {
	registry channels.Store
	checker  RightsChecker
	cron     *cron.Cron
	parser   cron.Parser
	pattern  string
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// NewService builds a refresher. An empty pattern uses DefaultRefreshSchedule.
func NewService(log *slog.Logger, registry channels.Store, checker RightsChecker, pattern string) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = DefaultRefreshSchedule
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(pattern); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", pattern, err)
	}
	return &Service{
		registry: registry,
		checker:  checker,
		cron:     cron.New(cron.WithParser(parser)),
		parser:   parser,
		pattern:  pattern,
		logger:   log.With(slog.String("service", "schedule")),
	}, nil
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	entryID, err := s.cron.AddFunc(s.pattern, func() {
		if _, err := s.RunOnce(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("rights refresh failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.running = true
	s.cron.Start()
	s.logger.Info("rights refresher started", slog.String("pattern", s.pattern))
	return nil
}

// Stop stops the scheduler and waits for a running sweep or ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cron.Remove(s.entryID)
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled sweep after t.
func (s *Service) Next(t time.Time) time.Time {
	sched, err := s.parser.Parse(s.pattern)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}

// RunOnce sweeps the registry now. A failure for one channel is logged and counted.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	records, err := s.registry.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list channels: %w", err)
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		isAdmin, err := s.checker.IsBotAdmin(ctx, rec.ID)
		if err != nil {
			report.Failed++
			s.logger.Warn("check bot rights failed", slog.String("channel_id", rec.ID), slog.Any("error", err))
			continue
		}
		if isAdmin == rec.IsBotAdmin {
			continue
		}
		if _, err := s.registry.UpdateRights(ctx, rec.ID, isAdmin); err != nil {
			report.Failed++
			s.logger.Error("update bot rights failed", slog.String("channel_id", rec.ID), slog.Any("error", err))
			continue
		}
		report.Changed++
		s.logger.Info("bot rights changed", slog.String("channel_id", rec.ID), slog.Bool("is_bot_admin", isAdmin))
	}
	return report, nil
}
