package progress

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Stage names the milestone an Event records.
type Stage string

// Run and document stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StagePoll       Stage = "POLL"
	StageBatch      Stage = "BATCH"
	StageDocWritten Stage = "DOC_WRITTEN"
	StageDocFailed  Stage = "DOC_FAILED"
	StageDocSkipped Stage = "DOC_SKIPPED"
)

// Event is one progress record.
type Event struct {
	// RunID is the harvest run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Site is the source host for document stages.
	Site string
	URL  string
	// Bytes is the rendered document size.
	Bytes int64
	// Items is the entry count of a batch.
	Items   int
	Attempt int
	// Complete marks a poll that returned a complete page.
	Complete bool
	Dur      time.Duration
	Note     string
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
	case StageRunStart, StageRunDone, StageRunError, StageBatch:
	case StagePoll:
		if e.Attempt <= 0 {
			return errors.New("poll event requires attempt")
		}
	case StageDocWritten, StageDocFailed, StageDocSkipped:
		if e.Site == "" {
			return fmt.Errorf("%s requires site", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID returns RunID as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// ParseRunID converts a textual run id. Ids that are not UUIDs are hashed
// into a name-based UUID so every run still has a stable binary id.
func ParseRunID(id string) [16]byte {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("harvest-run:"+id))
}

// SiteOf returns the host of raw, or "unknown".
func SiteOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "unknown"
}
