package domain

import "fmt"

// ValidateTransition checks a status/progress change against the job
// lifecycle: queued -> processing -> {completed | failed}, with queued ->
// failed reserved for trigger failures. Progress is pinned at 0 while queued,
// 100 once completed and never decreases while processing.
func ValidateTransition(from JobStatus, fromProgress int, to JobStatus, toProgress int) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if toProgress < 0 || toProgress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, toProgress)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	switch to {
	case JobStatusQueued:
		return fmt.Errorf("%w: cannot return to %s from %s", ErrInvalidTransition, to, from)
	case JobStatusProcessing:
		if from == JobStatusProcessing && toProgress < fromProgress {
			return fmt.Errorf("%w: progress regressed %d -> %d", ErrInvalidTransition, fromProgress, toProgress)
		}
	case JobStatusCompleted:
		if from != JobStatusProcessing {
			return fmt.Errorf("%w: %s cannot complete", ErrInvalidTransition, from)
		}
		if toProgress != 100 {
			return fmt.Errorf("%w: completed job must report 100, got %d", ErrInvalidTransition, toProgress)
		}
	case JobStatusFailed:
	}
	return nil
}
