// Package ingest turns feed casts into pipeline jobs.
//
// Each poll resumes from the cursor persisted in the job store, creates one
// job per cast that has never been ingested, and advances the cursor only
// after the page's jobs are recorded. Delivery from the feed is at-least-once,
// so a re-delivered cast is skipped whatever state its job reached. A failed
// cast re-enters the pipeline only through an operator retry of its job.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/queue"
	"castreel/internal/services/feed"
	"castreel/internal/stage"
)

// Result summarizes one poll.
type Result struct {
	Pages      int
	Fetched    int
	Created    int
	Duplicates int
	Excluded   int

	// Failed counts redelivered casts whose job already failed.
	Failed int

	// Skipped counts feed entries that could not be decoded.
	Skipped int
}

// Ingestor polls the feed and creates jobs.
type Ingestor struct {
	cfg     config.Feed
	source  feed.Source
	store   *queue.Store
	logger  *slog.Logger
	exclude []string
}

// NewIngestor constructs an Ingestor using the configured feed client.
func NewIngestor(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Ingestor {
	return NewIngestorWithSource(cfg, feed.NewClient(cfg.Feed, nil), store, logger)
}

// NewIngestorWithSource allows injecting the feed source (used in tests).
func NewIngestorWithSource(cfg *config.Config, source feed.Source, store *queue.Store, logger *slog.Logger) *Ingestor {
	exclude := make([]string, 0, len(cfg.Feed.ExcludeAuthors))
	for _, pattern := range cfg.Feed.ExcludeAuthors {
		if pattern = strings.ToLower(strings.TrimSpace(pattern)); pattern != "" {
			exclude = append(exclude, pattern)
		}
	}
	return &Ingestor{
		cfg:     cfg.Feed,
		source:  source,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "ingest"),
		exclude: exclude,
	}
}

// CursorKey names the persisted cursor for this feed.
func (i *Ingestor) CursorKey() string {
	if id := strings.TrimSpace(i.cfg.ChannelID); id != "" {
		return "channel:" + id
	}
	return "default"
}

// Poll fetches up to feed.max_pages_per_poll pages starting at the stored
// cursor. Feed errors are returned as-is so callers can classify them.
func (i *Ingestor) Poll(ctx context.Context) (Result, error) {
	var result Result
	key := i.CursorKey()
	cursor, err := i.store.GetCursor(ctx, key)
	if err != nil {
		return result, err
	}
	maxPages := i.cfg.MaxPagesPerPoll
	if maxPages <= 0 {
		maxPages = 1
	}

	for result.Pages < maxPages {
		page, err := i.source.FetchNewCasts(ctx, cursor)
		if err != nil {
			return result, err
		}
		result.Pages++
		result.Fetched += len(page.Casts)
		result.Skipped += len(page.Skipped)
		for _, skipped := range page.Skipped {
			logging.WarnWithContext(i.logger, "feed cast skipped", "ingest_cast_skipped",
				logging.Int("index", skipped.Index),
				logging.String("reason", skipped.Reason),
				logging.String(logging.FieldImpact, "cast was not queued; the rest of the page was ingested"),
			)
		}
		for _, cast := range page.Casts {
			if err := i.ingestCast(ctx, cast, &result); err != nil {
				return result, err
			}
		}
		if err := i.store.SetCursor(ctx, key, page.NextCursor); err != nil {
			return result, err
		}
		if page.NextCursor == "" || len(page.Casts) == 0 {
			break
		}
		cursor = page.NextCursor
	}

	if result.Created > 0 {
		i.logger.Info("ingested casts",
			logging.Int("created", result.Created),
			logging.Int("duplicates", result.Duplicates),
			logging.Int("previously_failed", result.Failed),
			logging.Int("excluded", result.Excluded),
			logging.Int("pages", result.Pages),
			logging.String(logging.FieldEventType, "ingest_complete"),
		)
	}
	return result, nil
}

func (i *Ingestor) ingestCast(ctx context.Context, cast feed.Cast, result *Result) error {
	sourceRef := cast.SourceRef()
	if i.excluded(cast.Author.Username) {
		result.Excluded++
		i.logger.Debug("cast excluded by author filter",
			logging.String(logging.FieldSourceRef, sourceRef),
			logging.String("author", cast.Author.Username),
		)
		return nil
	}

	existing, err := i.store.LatestBySourceRef(ctx, sourceRef)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.State == queue.StateFailed {
			result.Failed++
			i.logger.Debug("cast already failed; awaiting operator retry",
				logging.String(logging.FieldJobID, existing.ID),
				logging.String(logging.FieldSourceRef, sourceRef),
			)
			return nil
		}
		result.Duplicates++
		return nil
	}

	job, err := i.store.Create(ctx, sourceRef, cast.Raw)
	if errors.Is(err, queue.ErrDuplicateSourceRef) {
		result.Duplicates++
		return nil
	}
	if err != nil {
		return fmt.Errorf("create job for %s: %w", sourceRef, err)
	}
	result.Created++
	i.logger.Debug("job created",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSourceRef, sourceRef),
	)
	return nil
}

func (i *Ingestor) excluded(author string) bool {
	author = strings.ToLower(strings.TrimSpace(author))
	if author == "" {
		return false
	}
	for _, pattern := range i.exclude {
		if ok, err := doublestar.Match(pattern, author); err == nil && ok {
			return true
		}
	}
	return false
}

// HealthCheck reports whether the feed is configured.
func (i *Ingestor) HealthCheck(context.Context) stage.Health {
	return stage.Check("ingest",
		stage.Needs(i.source != nil, "feed source unavailable"),
		stage.Configured("feed.base_url", i.cfg.BaseURL),
	)
}
