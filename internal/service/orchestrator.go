package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reeltrack/internal/config"
	"reeltrack/internal/domain"
)

// Orchestrator drives one collection pass: every active source of every
// active project of every user, in traversal order. A single source failing
// never aborts the pass; only an unreachable store does.
type Orchestrator struct {
	store     Store
	collector Collector
	publisher Publisher
	logger    *slog.Logger
	config    config.RunConfig
}

func NewOrchestrator(
	store Store,
	collector Collector,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.RunConfig,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		collector: collector,
		publisher: publisher,
		logger:    logger.With("component", "orchestrator"),
		config:    cfg,
	}
}

// Run executes one pass and returns its totals. The run id is shared by
// every parsing log written during the pass. Cancellation is honored between
// sources; a source already started is closed out before Run returns.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunStats, error) {
	stats := &domain.RunStats{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	o.logger.Info("starting pass",
		"run_id", stats.RunID,
		"dry_run", o.config.DryRun,
		"min_views", o.config.MinViews,
		"max_age_days", o.config.MaxAgeDays,
	)

	users, err := o.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	for _, user := range users {
		projects, err := o.store.ListProjects(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("list projects for user %d: %w", user.ID, err)
		}

		for _, project := range projects {
			if !project.Active {
				continue
			}

			sources, err := o.store.ListSources(ctx, project.ID, true)
			if err != nil {
				return nil, fmt.Errorf("list sources for project %d: %w", project.ID, err)
			}

			for _, source := range orderSources(sources) {
				if err := ctx.Err(); err != nil {
					stats.Duration = time.Since(stats.StartedAt)
					o.logger.Warn("pass aborted", "run_id", stats.RunID, "sources", stats.Sources)
					return stats, err
				}
				stats.Sources++
				o.processSource(ctx, stats, project, source)
			}
		}
	}

	stats.Duration = time.Since(stats.StartedAt)

	o.logger.Info("pass completed",
		"run_id", stats.RunID,
		"sources", stats.Sources,
		"added", stats.Added,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

// processSource runs the log/collect/save sequence for one source. Errors
// are absorbed here: they mark the log failed and bump the pass counter, but
// sibling sources still run.
func (o *Orchestrator) processSource(ctx context.Context, stats *domain.RunStats, project domain.Project, source domain.Source) {
	logger := o.logger.With("run_id", stats.RunID, "source_id", source.ID, "locator", source.Locator)

	// Terminal log writes must land even when the pass is being cancelled:
	// a started run is never abandoned silently.
	finishCtx := context.WithoutCancel(ctx)

	logID, err := o.store.StartRun(ctx, stats.RunID, project.ID, source.Kind, source.ID)
	if err != nil {
		logger.Error("start run failed", "error", err)
		stats.Errors++
		return
	}

	if o.config.DryRun {
		if err := o.store.CompleteRun(finishCtx, logID, 0, "dry run"); err != nil {
			logger.Error("complete run failed", "error", err)
			stats.Errors++
		}
		return
	}

	records, err := o.collector.Collect(ctx, source.Locator, CollectParams{
		MinViews:   o.config.MinViews,
		MaxAgeDays: o.config.MaxAgeDays,
		AuthToken:  o.config.AuthToken,
	})
	if err != nil {
		message := "collect failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			message = "pass aborted"
		}
		if ferr := o.store.FailRun(finishCtx, logID, err.Error(), message); ferr != nil {
			logger.Error("fail run failed", "error", ferr)
		}
		logger.Warn("source collection failed", "error", err)
		stats.Errors++
		return
	}

	drafts := translateRecords(source.ID, records)
	added, err := o.store.SaveContentBatch(ctx, drafts)
	if err != nil {
		if ferr := o.store.FailRun(finishCtx, logID, err.Error(), "save failed"); ferr != nil {
			logger.Error("fail run failed", "error", ferr)
		}
		logger.Error("batch save failed", "error", err)
		stats.Errors++
		return
	}

	if err := o.store.CompleteRun(finishCtx, logID, added, ""); err != nil {
		logger.Error("complete run failed", "error", err)
		stats.Errors++
		return
	}
	stats.Added += added

	if err := o.store.MarkSourceRun(finishCtx, source.ID, time.Now()); err != nil {
		logger.Warn("mark source run failed", "error", err)
	}

	if o.publisher != nil {
		err := o.publisher.Publish(ctx, CollectedEvent{
			RunID:     stats.RunID,
			ProjectID: project.ID,
			SourceID:  source.ID,
			Locator:   source.Locator,
			Added:     added,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("publish failed", "error", err)
			stats.Errors++
		} else {
			stats.Published++
		}
	}

	logger.Debug("source collected", "records", len(records), "added", added)
}

// orderSources puts competitor accounts before hashtags, keeping insertion
// order within each group.
func orderSources(sources []domain.Source) []domain.Source {
	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		if s.Kind == domain.SourceKindAccount {
			out = append(out, s)
		}
	}
	for _, s := range sources {
		if s.Kind != domain.SourceKindAccount {
			out = append(out, s)
		}
	}
	return out
}

// translateRecords turns raw collector records into store drafts, defaulting
// a missing publication time to now and missing counters to zero. Records
// without a URL cannot be keyed and are dropped.
func translateRecords(sourceID int64, records []domain.ContentRecord) []domain.ContentDraft {
	now := time.Now().UTC()
	drafts := make([]domain.ContentDraft, 0, len(records))
	for _, r := range records {
		if r.URL == "" {
			continue
		}
		d := domain.ContentDraft{
			SourceID:     sourceID,
			URL:          r.URL,
			PublishedAt:  now,
			AuthorHandle: r.AuthorHandle,
			AuthorName:   r.AuthorName,
			DurationSec:  r.DurationSec,
			Caption:      r.Caption,
		}
		if r.PublishedAt != nil {
			d.PublishedAt = *r.PublishedAt
		}
		if r.Views != nil {
			d.Views = *r.Views
		}
		if r.Likes != nil {
			d.Likes = *r.Likes
		}
		if r.Comments != nil {
			d.Comments = *r.Comments
		}
		drafts = append(drafts, d)
	}
	return drafts
}
