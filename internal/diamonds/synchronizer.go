package diamonds

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	opSynchronizerNew = "diamonds.synchronizer.new"
	opSync            = "diamonds.sync"

	reasonFetchFailed     = "fetch_failed"
	reasonParseFailed     = "parse_failed"
	reasonEntryInvalid    = "entry_invalid"
	reasonLookupFailed    = "lookup_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonRunRecordFailed = "run_record_failed"
	reasonNotifyFailed    = "notify_failed"
	reasonRunIDFailed     = "run_id_failed"
	reasonCanceled        = "canceled"

	fieldRunID     = "run_id"
	fieldFeedURL   = "feed_url"
	fieldIndex     = "index"
	fieldDiamondID = "diamond_id"
)

// SyncObserver receives a finished run, e.g. to export metrics.
type SyncObserver interface {
	ObserveSync(run SyncRun, duration time.Duration)
}

// SyncNotifier announces a finished run to interested parties.
type SyncNotifier interface {
	NotifySync(ctx context.Context, run SyncRun) error
}

// SynchronizerConfig describes the dependencies of a Synchronizer.
type SynchronizerConfig struct {
	Store      Store
	FeedClient FeedClient
	Runs       RunRecorder
	IDProvider IDProvider
	Observer   SyncObserver
	Notifiers  []SyncNotifier
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Synchronizer imports the remote feed into the Store with one upsert per element.
// Overlapping calls are not serialized; the last write to a row wins.
type Synchronizer struct {
	store      Store
	feedClient FeedClient
	runs       RunRecorder
	idProvider IDProvider
	observer   SyncObserver
	notifiers  []SyncNotifier
	clock      func() time.Time
	logger     *zap.Logger
}

// NewSynchronizer validates the configuration.
func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opSynchronizerNew, "missing_store", errMissingStore)
	}
	if cfg.FeedClient == nil {
		return nil, newServiceError(opSynchronizerNew, "missing_feed_client", errMissingFeedClient)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opSynchronizerNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifiers := make([]SyncNotifier, 0, len(cfg.Notifiers))
	for _, notifier := range cfg.Notifiers {
		if notifier != nil {
			notifiers = append(notifiers, notifier)
		}
	}
	return &Synchronizer{
		store:      cfg.Store,
		feedClient: cfg.FeedClient,
		runs:       cfg.Runs,
		idProvider: cfg.IDProvider,
		observer:   cfg.Observer,
		notifiers:  notifiers,
		clock:      clock,
		logger:     logger,
	}, nil
}

type rowOutcome int

const (
	rowInserted rowOutcome = iota
	rowUpdated
	rowFailed
)

// Sync fetches feedURL and upserts every element by diamond id. A *FetchError
// or *ParseError aborts before the store is touched and no report is produced.
// Per-element failures are counted in SyncReport.Errors.
func (s *Synchronizer) Sync(ctx context.Context, feedURL string) (SyncReport, error) {
	started := s.clock().UTC()
	run := SyncRun{
		RunID:            s.newRunID(),
		FeedURL:          feedURL,
		StartedAtSeconds: started.Unix(),
	}
	logger := s.logger.With(zap.String(fieldRunID, run.RunID), zap.String(fieldFeedURL, feedURL))
	logger.Info("diamond sync started")

	body, err := s.feedClient.Fetch(ctx, feedURL)
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{URL: feedURL, Err: err}
		}
		s.logError(logger, reasonFetchFailed, err)
		s.finish(ctx, run, started, SyncStatusFetchFailed, SyncReport{}, err)
		return SyncReport{}, err
	}

	entries, err := DecodeFeed(body)
	if err != nil {
		s.logError(logger, reasonParseFailed, err)
		s.finish(ctx, run, started, SyncStatusParseFailed, SyncReport{}, err)
		return SyncReport{}, err
	}

	report := SyncReport{}
	for index, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Errors += len(entries) - index
			s.logError(logger, reasonCanceled, ctxErr, zap.Int(fieldIndex, index))
			s.finish(context.WithoutCancel(ctx), run, started, SyncStatusCanceled, report, ctxErr)
			return report, ctxErr
		}
		switch s.applyEntry(ctx, logger, index, entry) {
		case rowInserted:
			report.Inserted++
		case rowUpdated:
			report.Updated++
		default:
			report.Errors++
		}
	}

	logger.Info("diamond sync completed",
		zap.Int("entries", len(entries)),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("errors", report.Errors))
	s.finish(ctx, run, started, SyncStatusCompleted, report, nil)
	return report, nil
}

func (s *Synchronizer) applyEntry(ctx context.Context, logger *zap.Logger, index int, entry json.RawMessage) rowOutcome {
	attrs, err := DecodeFeedEntry(index, entry)
	if err != nil {
		logger.Warn("diamond feed entry rejected",
			zap.String("reason", reasonEntryInvalid),
			zap.Int(fieldIndex, index),
			zap.Error(err))
		return rowFailed
	}

	existing, err := s.store.FindByDiamondID(ctx, attrs.DiamondID)
	switch {
	case errors.Is(err, ErrDiamondNotFound):
		record := attrs.Record(0)
		if _, insertErr := s.store.Insert(ctx, &record); insertErr != nil {
			s.logError(logger, reasonInsertFailed, insertErr,
				zap.Int(fieldIndex, index), zap.String(fieldDiamondID, attrs.DiamondID.String()))
			return rowFailed
		}
		return rowInserted
	case err != nil:
		s.logError(logger, reasonLookupFailed, err,
			zap.Int(fieldIndex, index), zap.String(fieldDiamondID, attrs.DiamondID.String()))
		return rowFailed
	}

	if updateErr := s.store.Update(ctx, existing.ID, attrs.Record(existing.ID)); updateErr != nil {
		s.logError(logger, reasonUpdateFailed, updateErr,
			zap.Int(fieldIndex, index), zap.String(fieldDiamondID, attrs.DiamondID.String()))
		return rowFailed
	}
	return rowUpdated
}

// finish records, observes and announces the run. None of these side effects
// can change the outcome returned to the caller.
func (s *Synchronizer) finish(ctx context.Context, run SyncRun, started time.Time, status SyncStatus, report SyncReport, cause error) {
	finished := s.clock().UTC()
	run.FinishedAtSeconds = finished.Unix()
	run.Status = status
	run.Inserted = report.Inserted
	run.Updated = report.Updated
	run.Errors = report.Errors
	if cause != nil {
		run.Failure = cause.Error()
	}

	logger := s.logger.With(zap.String(fieldRunID, run.RunID))
	if s.runs != nil {
		if err := s.runs.Record(ctx, run); err != nil {
			s.logError(logger, reasonRunRecordFailed, err)
		}
	}
	if s.observer != nil {
		s.observer.ObserveSync(run, finished.Sub(started))
	}
	for _, notifier := range s.notifiers {
		if err := notifier.NotifySync(ctx, run); err != nil {
			s.logError(logger, reasonNotifyFailed, err)
		}
	}
}

func (s *Synchronizer) newRunID() string {
	runID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(s.logger, reasonRunIDFailed, err)
		return ""
	}
	return runID
}

func (s *Synchronizer) logError(logger *zap.Logger, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opSync),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("diamond sync error", attrs...)
}
