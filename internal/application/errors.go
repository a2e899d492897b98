package application

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	ErrSyncFailed      = errors.New("sync run failed")
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrIntentParse     = errors.New("could not parse query intent")
	ErrPipeline        = errors.New("query pipeline failed")
	ErrEmptyQuery      = errors.New("empty query")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError represents a validation failure with details
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// SyncBatchFailure aborts a sync run whose item failure ratio exceeded the
// configured maximum. The cursor is not advanced.
type SyncBatchFailure struct {
	Mode      string
	Failed    int
	Total     int
	MaxRatio  float64
	FailedIDs []string
}

func (e *SyncBatchFailure) Error() string {
	msg := fmt.Sprintf("%s sync failed: %d of %d items failed (max ratio %.2f)", e.Mode, e.Failed, e.Total, e.MaxRatio)
	if len(e.FailedIDs) > 0 {
		shown := e.FailedIDs
		if len(shown) > 5 {
			shown = shown[:5]
		}
		msg += ": " + strings.Join(shown, ", ")
	}
	return msg
}

func (e *SyncBatchFailure) Is(target error) bool {
	return target == ErrSyncFailed
}

// IntentParseError is terminal for a query: the model never produced a
// valid keyword set
type IntentParseError struct {
	Query    string
	Attempts int
	Err      error
}

func (e *IntentParseError) Error() string {
	return fmt.Sprintf("intent extraction failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *IntentParseError) Unwrap() error { return e.Err }

func (e *IntentParseError) Is(target error) bool {
	return target == ErrIntentParse
}

// Pipeline stages, in execution order
const (
	StageIntent     = "intent"
	StageRecall     = "recall"
	StageConfidence = "confidence"
	StageAssemble   = "assemble"
)

// PipelineError is what a querying client sees when a stage fails, as
// opposed to an empty result
type PipelineError struct {
	QueryID string
	Stage   string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("query %s: %s stage: %v", e.QueryID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func (e *PipelineError) Is(target error) bool {
	return target == ErrPipeline
}
