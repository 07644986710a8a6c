package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a crawl milestone.
type Stage string

// Crawl stages.
const (
	StageCrawlStart    Stage = "CRAWL_START"
	StagePageDone      Stage = "PAGE_DONE"
	StageRecordSkipped Stage = "RECORD_SKIPPED"
	StageLookupFailed  Stage = "LOOKUP_FAILED"
	StageCrawlDone     Stage = "CRAWL_DONE"
	StageCrawlError    Stage = "CRAWL_ERROR"
)

// Event is one crawl milestone.
type Event struct {
	// RunID identifies one crawl invocation (UUIDv7 bytes).
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Page is the catalog page the event belongs to.
	Page int
	// TotalPages is zero while the provider has not reported it.
	TotalPages int
	// RecordID is set for per-record stages.
	RecordID string
	// Inserted is the number of new rows archived by the page or run.
	Inserted int64
	// Dur is the page or run wall time.
	Dur time.Duration
	// Note carries short error text.
	Note string
}

// Validate rejects events the sinks cannot interpret.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageCrawlError, StageRecordSkipped:
	case StagePageDone:
		if e.Page < 0 {
			return errors.New("page done requires a page >= 0")
		}
	case StageLookupFailed:
		if e.RecordID == "" {
			return errors.New("lookup failed requires record id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 || e.Inserted < 0 {
		return errors.New("duration and inserted must be >= 0")
	}
	return nil
}

// RunUUID returns the run id as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
