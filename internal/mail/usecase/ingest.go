package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
	"github.com/jcason-sudo/AIEmailSummary/pkg/history"
	"github.com/jcason-sudo/AIEmailSummary/pkg/settings"
)

const upsertBatch = 100

// ErrIngestRunning is returned when an ingestion run is requested while one
// is already in flight.
var ErrIngestRunning = errors.New("an ingestion run is already in progress")

// RunOptions selects what one ingestion run covers. Zero DaysBack falls back
// to the configured lookback window; an empty Sources list means every
// configured source; ArchivePaths replaces the configured archive directories
// for this run only.
type RunOptions struct {
	DaysBack     int
	Sources      []string
	ArchivePaths []string
}

// IngestUsecase pulls messages from the configured sources and upserts them
// into the vector index in batches. Only one run may be active at a time.
type IngestUsecase struct {
	index          VectorIndex
	sources        []MailSource
	archiveFactory func(paths []string) MailSource
	settings       *settings.Store
	history        *history.Store
	log            *logrus.Logger
	running        atomic.Bool
}

// NewIngestUsecase wires the import sources to the index.
func NewIngestUsecase(index VectorIndex, sources []MailSource, store *settings.Store, hist *history.Store, log *logrus.Logger) *IngestUsecase {
	return &IngestUsecase{
		index:    index,
		sources:  sources,
		settings: store,
		history:  hist,
		log:      log,
	}
}

// SetArchiveFactory enables per-run archive path overrides.
func (u *IngestUsecase) SetArchiveFactory(fn func(paths []string) MailSource) {
	u.archiveFactory = fn
}

// Running reports whether an ingestion run is in flight.
func (u *IngestUsecase) Running() bool {
	return u.running.Load()
}

// Run executes one ingestion pass synchronously. Source failures after some
// messages were indexed are reported alongside the partial counts.
func (u *IngestUsecase) Run(ctx context.Context, opts RunOptions) (*IngestResult, error) {
	if !u.running.CompareAndSwap(false, true) {
		return nil, ErrIngestRunning
	}
	return u.run(ctx, uuid.NewString(), opts)
}

// Start launches a run in the background and returns its id immediately.
// The result lands in the run history.
func (u *IngestUsecase) Start(opts RunOptions) (string, error) {
	if !u.running.CompareAndSwap(false, true) {
		return "", ErrIngestRunning
	}
	runID := uuid.NewString()
	go func() {
		if _, err := u.run(context.Background(), runID, opts); err != nil {
			u.log.WithError(err).WithField("run_id", runID).Error("background ingestion failed")
		}
	}()
	return runID, nil
}

// run assumes the running flag is held and releases it when done.
func (u *IngestUsecase) run(ctx context.Context, runID string, opts RunOptions) (*IngestResult, error) {
	defer u.running.Store(false)

	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = u.settings.Get().LookbackDays
	}
	since := time.Now().AddDate(0, 0, -daysBack)

	result := &IngestResult{
		RunID:       runID,
		SourcesUsed: []string{},
	}
	started := time.Now()

	var runErr error
	for _, src := range u.runSources(opts) {
		if !sourceWanted(src.Name(), opts.Sources) {
			continue
		}
		count, err := u.runSource(ctx, src, since)
		u.addCount(result, src.Name(), count)
		if count > 0 || err == nil {
			result.SourcesUsed = append(result.SourcesUsed, src.Name())
		}
		if err != nil {
			u.log.WithError(err).WithField("source", src.Name()).Error("ingestion source failed")
			runErr = fmt.Errorf("source %s: %w", src.Name(), err)
			break
		}
	}
	result.TotalIndexed = result.IMAPMessages + result.ArchiveMessages

	u.record(result, started, daysBack, runErr)

	if runErr != nil && result.TotalIndexed == 0 {
		return nil, runErr
	}
	return result, runErr
}

// runSources applies the per-run archive override.
func (u *IngestUsecase) runSources(opts RunOptions) []MailSource {
	if len(opts.ArchivePaths) == 0 || u.archiveFactory == nil {
		return u.sources
	}
	override := u.archiveFactory(opts.ArchivePaths)
	out := make([]MailSource, 0, len(u.sources)+1)
	replaced := false
	for _, src := range u.sources {
		if src.Name() == domain.SourceArchive {
			out = append(out, override)
			replaced = true
			continue
		}
		out = append(out, src)
	}
	if !replaced {
		out = append(out, override)
	}
	return out
}

// runSource streams one source into the index, flushing every upsertBatch
// messages. Messages handed over before a failure stay indexed.
func (u *IngestUsecase) runSource(ctx context.Context, src MailSource, since time.Time) (int, error) {
	batch := make([]*domain.Message, 0, upsertBatch)
	count := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := u.index.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}

	err := src.Fetch(ctx, since, func(msg *domain.Message) error {
		batch = append(batch, msg)
		if len(batch) >= upsertBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		// Keep what arrived before the failure.
		if ferr := flush(); ferr != nil {
			u.log.WithError(ferr).Warn("final flush after source failure")
		}
		return count, err
	}
	return count, flush()
}

func (u *IngestUsecase) addCount(result *IngestResult, source string, count int) {
	switch source {
	case domain.SourceIMAP:
		result.IMAPMessages += count
	case domain.SourceArchive:
		result.ArchiveMessages += count
	}
}

func (u *IngestUsecase) record(result *IngestResult, started time.Time, daysBack int, runErr error) {
	if u.history == nil {
		return
	}
	run := history.Run{
		ID:              result.RunID,
		StartedAt:       started,
		FinishedAt:      time.Now(),
		DaysBack:        daysBack,
		IMAPMessages:    result.IMAPMessages,
		ArchiveMessages: result.ArchiveMessages,
		TotalIndexed:    result.TotalIndexed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := u.history.Record(run); err != nil {
		u.log.WithError(err).Warn("could not record ingestion run")
	}
}

// History lists recent ingestion runs, newest first.
func (u *IngestUsecase) History(limit int) ([]history.Run, error) {
	if u.history == nil {
		return []history.Run{}, nil
	}
	return u.history.Recent(limit)
}

func sourceWanted(name string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if w == name {
			return true
		}
	}
	return false
}
