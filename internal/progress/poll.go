package progress

import "time"

// PollReporter turns poll attempts into StagePoll events.
type PollReporter struct {
	Emitter Emitter
	RunID   [16]byte
	Now     func() time.Time
}

// PollAttempt implements poller.Observer.
func (r PollReporter) PollAttempt(attempt int, complete bool, err error) {
	if r.Emitter == nil {
		return
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	evt := Event{RunID: r.RunID, TS: now().UTC(), Stage: StagePoll, Attempt: attempt, Complete: complete}
	if err != nil {
		evt.Note = err.Error()
	}
	r.Emitter.Emit(evt)
}
