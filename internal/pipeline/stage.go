package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized means a step ran before the step it depends on.
	ErrNotInitialized = errors.New("processor not initialized")
	// ErrStageCompleted means a step that already ran was called again.
	ErrStageCompleted = errors.New("stage already completed")
)

// Stage is a processor's position in its fixed step sequence. Field
// processors move Empty, Ingested, ColumnsCorrected, ValuesCorrected,
// StationJoined; weather processors move Empty, Ingested, MessagesProcessed.
type Stage int

const (
	StageEmpty Stage = iota
	StageIngested
	StageColumnsCorrected
	StageValuesCorrected
	StageStationJoined
	StageMessagesProcessed
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageIngested:
		return "ingested"
	case StageColumnsCorrected:
		return "columns corrected"
	case StageValuesCorrected:
		return "values corrected"
	case StageStationJoined:
		return "station joined"
	case StageMessagesProcessed:
		return "messages processed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// expectStage checks that a step expecting want may run from current.
func expectStage(step string, current, want Stage) error {
	switch {
	case current == want:
		return nil
	case current < want:
		return fmt.Errorf("%s: %w: at %s, needs %s", step, ErrNotInitialized, current, want)
	default:
		return fmt.Errorf("%s: %w: already at %s", step, ErrStageCompleted, current)
	}
}
