// Package crawl walks the NeoWs catalog page by page and archives every
// record it can resolve.
//
// The crawl is strictly sequential. Restart safety comes from the archive's
// insert-or-ignore contract plus an operator supplied start page: a crawl
// aborted at page n can be rerun from n without duplicating rows.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/neo"
	"github.com/JakeFAU/neows-archiver/internal/normalize"
	"github.com/JakeFAU/neows-archiver/internal/progress"
)

// State is the orchestrator's position in the crawl state machine.
type State string

// Crawl states. Done and Aborted are terminal.
const (
	StateInit              State = "init"
	StateFetchingFirstPage State = "fetching_first_page"
	StateCrawlingPage      State = "crawling_page"
	StateDone              State = "done"
	StateAborted           State = "aborted"
)

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config holds the crawl knobs.
type Config struct {
	// StartPage is the resumption point.
	StartPage int
	// MaxPages bounds the number of pages processed; zero means unbounded.
	MaxPages int
	// SnapshotPrefix is the blob path prefix for raw detail snapshots.
	SnapshotPrefix string
	// Topic names the "record archived" notification topic.
	Topic string
}

// Deps are the collaborators. Catalog, Lookuper, Archive, Clock and IDs are
// required; Blobs, Publisher, Hasher, Emitter and Logger are optional.
type Deps struct {
	Catalog   neo.Catalog
	Lookuper  neo.Lookuper
	Archive   neo.Archive
	Blobs     neo.BlobStore
	Publisher neo.Publisher
	Hasher    neo.Hasher
	IDs       IDGenerator
	Clock     neo.Clock
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// Result summarizes one Run.
type Result struct {
	RunID          uuid.UUID
	State          State
	Pages          int
	Inserted       int
	Duplicates     int
	Skipped        int
	LookupFailures int
	// SideEffectFailures counts failed snapshots and notifications.
	SideEffectFailures int
	FirstPage          int
	// LastPage is the last fully processed page, or -1 when none was.
	LastPage   int
	TotalPages *int
	Elapsed    time.Duration
}

// ArchivedNotice is published once per newly archived record.
type ArchivedNotice struct {
	RunID      string    `json:"run_id"`
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Hazardous  bool      `json:"is_potentially_hazardous_asteroid"`
	SHA256     string    `json:"sha256,omitempty"`
	BlobURI    string    `json:"blob_uri,omitempty"`
	Page       int       `json:"page"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Orchestrator runs crawls.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("crawl: catalog is required")
	case deps.Lookuper == nil:
		return nil, errors.New("crawl: lookuper is required")
	case deps.Archive == nil:
		return nil, errors.New("crawl: archive is required")
	case deps.Clock == nil:
		return nil, errors.New("crawl: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("crawl: id generator is required")
	}
	if cfg.StartPage < 0 {
		return nil, fmt.Errorf("crawl: start page %d must be >= 0", cfg.StartPage)
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("crawl: max pages %d must be >= 0", cfg.MaxPages)
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// Run executes one crawl. It returns a non-nil error exactly when the crawl
// ends Aborted; the Result is populated either way.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	runID, err := o.deps.IDs.NewRawID()
	if err != nil {
		return Result{State: StateAborted, LastPage: -1}, fmt.Errorf("generate run id: %w", err)
	}
	r := &run{
		o:      o,
		id:     runID,
		start:  o.deps.Clock.Now(),
		logger: o.deps.Logger.With(zap.String("run_id", runID.String())),
		res: Result{
			RunID:     runID,
			State:     StateInit,
			FirstPage: o.cfg.StartPage,
			LastPage:  -1,
		},
	}
	return r.execute(ctx)
}

type run struct {
	o      *Orchestrator
	id     uuid.UUID
	start  time.Time
	logger *zap.Logger
	res    Result
}

func (r *run) execute(ctx context.Context) (Result, error) {
	r.emit(progress.Event{Stage: progress.StageCrawlStart, Page: r.o.cfg.StartPage})
	r.logger.Info("crawl started",
		zap.Int("start_page", r.o.cfg.StartPage),
		zap.Int("max_pages", r.o.cfg.MaxPages),
	)

	r.res.State = StateFetchingFirstPage
	n := r.o.cfg.StartPage
	page, err := r.o.deps.Catalog.BrowsePage(ctx, n)
	if err != nil {
		return r.abort(n, fmt.Errorf("fetch first page %d: %w", n, err))
	}
	r.res.TotalPages = page.TotalPages

	for {
		r.res.State = StateCrawlingPage
		if len(page.Records) == 0 {
			return r.done("empty page", n)
		}

		pageStart := r.o.deps.Clock.Now()
		inserted, err := r.crawlPage(ctx, page)
		if err != nil {
			return r.abort(n, err)
		}
		r.res.Pages++
		r.res.LastPage = n
		r.reportPage(n, inserted, r.o.deps.Clock.Now().Sub(pageStart))

		if total := r.res.TotalPages; total != nil && n >= *total {
			return r.done("last page reached", n)
		}
		if r.o.cfg.MaxPages > 0 && r.res.Pages >= r.o.cfg.MaxPages {
			return r.done("page limit reached", n)
		}

		n++
		page, err = r.o.deps.Catalog.BrowsePage(ctx, n)
		if err != nil {
			return r.abort(n, fmt.Errorf("fetch page %d: %w", n, err))
		}
	}
}

// crawlPage archives every resolvable record of page and returns the number
// of new rows. Only persistence failures and cancellation are returned.
func (r *run) crawlPage(ctx context.Context, page neo.CatalogPage) (int, error) {
	inserted := 0
	for _, summary := range page.Records {
		if err := ctx.Err(); err != nil {
			return inserted, fmt.Errorf("crawl page %d: %w", page.PageIndex, err)
		}

		id := summary.ReferenceID()
		if strings.TrimSpace(id) == "" {
			r.res.Skipped++
			r.logger.Debug("record without reference id skipped", zap.Int("page", page.PageIndex))
			r.emit(progress.Event{Stage: progress.StageRecordSkipped, Page: page.PageIndex, Note: "missing id"})
			continue
		}

		detail, err := r.o.deps.Lookuper.Lookup(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return inserted, fmt.Errorf("crawl page %d: %w", page.PageIndex, ctxErr)
			}
			r.res.LookupFailures++
			r.logger.Warn("detail lookup failed, skipping record",
				zap.Int("page", page.PageIndex),
				zap.String("record_id", id),
				zap.Error(err),
			)
			r.emit(progress.Event{
				Stage:    progress.StageLookupFailed,
				Page:     page.PageIndex,
				RecordID: id,
				Note:     err.Error(),
			})
			continue
		}

		rec := normalize.Record(detail, summary.Approaches)
		if rec.ID == "" {
			rec.ID = id
		}
		isNew, err := r.o.deps.Archive.Insert(ctx, rec)
		if err != nil {
			if !errors.Is(err, neo.ErrPersistence) {
				err = fmt.Errorf("%w: %v", neo.ErrPersistence, err)
			}
			return inserted, fmt.Errorf("archive %s: %w", rec.ID, err)
		}
		if !isNew {
			r.res.Duplicates++
			continue
		}
		inserted++
		r.res.Inserted++
		r.afterInsert(ctx, page.PageIndex, detail, rec)
	}
	return inserted, nil
}

// afterInsert writes the raw snapshot and the notification. Failures are
// logged and counted; they never abort the crawl.
func (r *run) afterInsert(ctx context.Context, pageIndex int, detail neo.DetailRecord, rec neo.NormalizedRecord) {
	deps := r.o.deps
	if deps.Blobs == nil && deps.Publisher == nil {
		return
	}

	notice := ArchivedNotice{
		RunID:      r.id.String(),
		ID:         rec.ID,
		Name:       rec.Name,
		Hazardous:  rec.PotentiallyHazardous,
		Page:       pageIndex,
		ArchivedAt: deps.Clock.Now().UTC(),
	}
	if deps.Hasher != nil {
		if payload, err := neo.EncodeRecord(rec); err == nil {
			if sum, hashErr := deps.Hasher.Hash(payload); hashErr == nil {
				notice.SHA256 = sum
			}
		}
	}

	if deps.Blobs != nil {
		uri, err := r.snapshot(ctx, detail, rec.ID)
		if err != nil {
			r.res.SideEffectFailures++
			r.logger.Warn("raw snapshot failed", zap.String("record_id", rec.ID), zap.Error(err))
		} else {
			notice.BlobURI = uri
		}
	}

	if deps.Publisher != nil {
		if _, err := deps.Publisher.Publish(ctx, r.o.cfg.Topic, notice); err != nil {
			r.res.SideEffectFailures++
			r.logger.Warn("archive notification failed", zap.String("record_id", rec.ID), zap.Error(err))
		}
	}
}

func (r *run) snapshot(ctx context.Context, detail neo.DetailRecord, id string) (string, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	key := path.Join(r.o.cfg.SnapshotPrefix, id+".json")
	uri, err := r.o.deps.Blobs.PutObject(ctx, key, "application/json", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return uri, nil
}

func (r *run) reportPage(n, inserted int, dur time.Duration) {
	fields := []zap.Field{
		zap.Int("page", n),
		zap.Duration("elapsed", r.o.deps.Clock.Now().Sub(r.start)),
		zap.Int("inserted", inserted),
	}
	total := 0
	if r.res.TotalPages != nil {
		total = *r.res.TotalPages
		fields = append(fields, zap.Int("total_pages", total))
	}
	r.logger.Info("page crawled", fields...)
	r.emit(progress.Event{
		Stage:      progress.StagePageDone,
		Page:       n,
		TotalPages: total,
		Inserted:   int64(inserted),
		Dur:        dur,
	})
}

func (r *run) done(reason string, n int) (Result, error) {
	r.res.State = StateDone
	r.res.Elapsed = r.o.deps.Clock.Now().Sub(r.start)
	r.logger.Info("crawl finished",
		zap.String("reason", reason),
		zap.Int("page", n),
		zap.Int("pages", r.res.Pages),
		zap.Int("inserted", r.res.Inserted),
		zap.Int("duplicates", r.res.Duplicates),
		zap.Int("lookup_failures", r.res.LookupFailures),
		zap.Duration("elapsed", r.res.Elapsed),
	)
	r.emit(progress.Event{
		Stage:    progress.StageCrawlDone,
		Page:     n,
		Inserted: int64(r.res.Inserted),
		Dur:      r.res.Elapsed,
	})
	return r.res, nil
}

func (r *run) abort(n int, err error) (Result, error) {
	r.res.State = StateAborted
	r.res.Elapsed = r.o.deps.Clock.Now().Sub(r.start)
	r.logger.Error("crawl aborted; rerun with this start page to resume",
		zap.Int("page", n),
		zap.Int("inserted", r.res.Inserted),
		zap.Duration("elapsed", r.res.Elapsed),
		zap.Error(err),
	)
	r.emit(progress.Event{
		Stage:    progress.StageCrawlError,
		Page:     n,
		Inserted: int64(r.res.Inserted),
		Dur:      r.res.Elapsed,
		Note:     err.Error(),
	})
	return r.res, err
}

func (r *run) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(r.id)
	evt.TS = r.o.deps.Clock.Now()
	r.o.deps.Emitter.Emit(evt)
}
