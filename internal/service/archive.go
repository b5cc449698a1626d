package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// SnapshotArchiver stores view snapshots and trade batches.
type SnapshotArchiver interface {
	ArchiveBook(ctx context.Context, v *view.BookView, at time.Time) (string, error)
	ArchiveTicks(ctx context.Context, v *view.TickView, at time.Time) (string, error)
	ArchiveTrades(ctx context.Context, trades []domain.Trade, at time.Time) (string, error)
}

// ArchiveService periodically archives the latest book and tick views and
// every trade not archived before. Stale or unloaded views are skipped.
type ArchiveService struct {
	views    *view.Store
	archiver SnapshotArchiver
	audit    domain.AuditStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	lastBook    uint64
	lastTicks   uint64
	lastTradeID int64
}

// NewArchiveService creates an ArchiveService. audit may be nil.
func NewArchiveService(views *view.Store, archiver SnapshotArchiver, audit domain.AuditStore, interval time.Duration, logger *slog.Logger) *ArchiveService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ArchiveService{
		views:    views,
		archiver: archiver,
		audit:    audit,
		interval: interval,
		logger:   logger.With(slog.String("component", "archive_service")),
		now:      time.Now,
	}
}

// Run archives every interval until ctx is done, then makes a final pass.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "archive_service: started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			s.Once(final)
			cancel()
			s.logger.Info("archive_service: stopped")
			return nil
		case <-ticker.C:
			s.Once(ctx)
		}
	}
}

// Once performs one archive pass and returns the number of objects written.
// A view whose generation has not moved since the previous pass is not
// archived again.
func (s *ArchiveService) Once(ctx context.Context) int {
	at := s.now().UTC()
	written := 0

	if b := s.views.Book(); b != nil && b.Loaded && !b.IsStale() && b.Generation != s.lastBook {
		if path, err := s.archiver.ArchiveBook(ctx, b, at); err != nil {
			s.logger.WarnContext(ctx, "archive_service: book failed", slog.String("error", err.Error()))
		} else {
			s.lastBook = b.Generation
			s.recorded(ctx, "archive.book", path, 1)
			written++
		}
	}

	if tv := s.views.Ticks(); tv != nil && tv.Loaded && !tv.IsStale() && tv.Generation != s.lastTicks {
		if path, err := s.archiver.ArchiveTicks(ctx, tv, at); err != nil {
			s.logger.WarnContext(ctx, "archive_service: ticks failed", slog.String("error", err.Error()))
		} else {
			s.lastTicks = tv.Generation
			s.recorded(ctx, "archive.ticks", path, len(tv.Ticks))
			written++
		}
	}

	if tv := s.views.Trades(); tv != nil && tv.Loaded {
		var fresh []domain.Trade
		for _, t := range tv.Trades {
			if t.ID > s.lastTradeID {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) > 0 {
			if path, err := s.archiver.ArchiveTrades(ctx, fresh, at); err != nil {
				s.logger.WarnContext(ctx, "archive_service: trades failed", slog.String("error", err.Error()))
			} else {
				s.lastTradeID = fresh[len(fresh)-1].ID
				s.recorded(ctx, "archive.trades", path, len(fresh))
				written++
			}
		}
	}
	return written
}

func (s *ArchiveService) recorded(ctx context.Context, event, path string, count int) {
	s.logger.DebugContext(ctx, "archive_service: object written",
		slog.String("path", path),
		slog.Int("count", count),
	)
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, map[string]any{"path": path, "count": count}); err != nil {
		s.logger.WarnContext(ctx, "archive_service: audit log failed", slog.String("error", err.Error()))
	}
}
