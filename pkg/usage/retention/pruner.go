package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tollgate-hq/tollgate/pkg/usage"
	"tollgate-hq/tollgate/pkg/usage/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Days is the number of days to keep events. Zero keeps them forever.
	Days int

	// PruneSchedule is a cron expression, e.g. "0 3 * * *".
	PruneSchedule string

	// MaxRecords caps the number of stored events. Zero is unlimited.
	MaxRecords int64

	// ArchiveBeforeDelete writes events to ArchivePath before deleting them.
	ArchiveBeforeDelete bool

	// ArchivePath is the archive directory.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Pruner enforces retention on a usage.Storage.
type Pruner struct {
	storage   usage.Storage
	config    *Config
	now       func() time.Time
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new pruner.
func NewPruner(storage usage.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Pruner{
		storage: storage,
		config:  config,
		now:     time.Now,
		logger:  slog.Default().With("component", "usage.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes events older than the retention period, then the oldest
// events beyond MaxRecords. It returns the number of deleted events.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total > 0 {
		p.logger.Info("usage pruning completed",
			"total_deleted", total,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Debug("no usage events pruned")
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().AddDate(0, 0, -p.config.Days)
	query := &usage.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		events, err := p.storage.Query(ctx, query)
		if err != nil {
			return 0, usage.NewRetentionError(p.config.Days, err)
		}
		if err := p.archive(ctx, "usage-age", events); err != nil {
			return 0, usage.NewRetentionError(p.config.Days, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, usage.NewRetentionError(p.config.Days, err)
	}
	p.logger.Info("pruned usage events by age",
		"deleted_count", deleted,
		"cutoff", cutoff,
	)
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &usage.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}

	excess := count - p.config.MaxRecords
	oldest, err := p.storage.Query(ctx, &usage.Query{Limit: int(excess), SortOrder: usage.SortAsc})
	if err != nil {
		return 0, fmt.Errorf("failed to query oldest events: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, "usage-count", oldest); err != nil {
			return 0, fmt.Errorf("archive failed: %w", err)
		}
	}

	// Events sharing the cutoff timestamp are removed together.
	cutoff := oldest[len(oldest)-1].Timestamp.Add(time.Nanosecond)
	deleted, err := p.storage.Delete(ctx, &usage.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	p.logger.Info("pruned usage events by count",
		"deleted_count", deleted,
		"max_records", p.config.MaxRecords,
	)
	return deleted, nil
}

func (p *Pruner) archive(ctx context.Context, prefix string, events []*usage.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", prefix, p.now().UTC().Format("2006-01-02-150405.000"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, events, f); err != nil {
		return fmt.Errorf("failed to export events to archive: %w", err)
	}

	p.logger.Info("usage events archived",
		"archive_file", path,
		"event_count", len(events),
	)
	return nil
}

// Start starts the pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
