package app

import (
	"time"

	"github.com/rs/zerolog"
)

// Task stages. Events are emitted by the real asynchronous operation
// (rate refresh, batch recalculation), not by timers.
const (
	StageStarted   = "started"
	StageProgress  = "progress"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

type TaskEvent struct {
	Task  string    `json:"task"`
	Stage string    `json:"stage"`
	Done  int       `json:"done,omitempty"`
	Total int       `json:"total,omitempty"`
	Err   string    `json:"err,omitempty"`
	At    time.Time `json:"at"`
}

type Notifier interface {
	Notify(e TaskEvent)
}

// LogNotifier writes task events to the structured log.
type LogNotifier struct{ L zerolog.Logger }

func (n LogNotifier) Notify(e TaskEvent) {
	ev := n.L.Info()
	if e.Stage == StageFailed {
		ev = n.L.Warn().Str("err", e.Err)
	}
	ev.Str("task", e.Task).Str("stage", e.Stage)
	if e.Total > 0 {
		ev.Int("done", e.Done).Int("total", e.Total)
	}
	ev.Msg("task_event")
}

type NopNotifier struct{}

func (NopNotifier) Notify(TaskEvent) {}
