package production

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrCCPGateBlocked         = errors.New("ccp gate blocked")
	ErrMissingMeasurement     = ccp.ErrMissingMeasurement
	ErrIncompleteJobCards     = errors.New("incomplete job cards")
	ErrRecipeConfig           = errors.New("recipe configuration error")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPersistence            = errors.New("persistence error")
)

// kinds lists every error kind, most specific first.
var kinds = []error{
	ErrCCPGateBlocked,
	ErrIncompleteJobCards,
	ErrMissingMeasurement,
	ErrRecipeConfig,
	ErrInvalidTransition,
	ErrValidation,
	ErrNotFound,
	ErrConcurrentModification,
	ErrPersistence,
}

// Error is a failed operation on a work order or job card.
type Error struct {
	Kind     error
	Op       string
	Detail   string
	JobCards []string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.JobCards) > 0 {
		fmt.Fprintf(&b, " (job cards: %s)", strings.Join(e.JobCards, ", "))
	}
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the error kind carried by err, or nil when err is not a
// production error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func validationf(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func transitionf(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidTransition, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func gateBlocked(op, detail string, jobCards ...string) error {
	return &Error{Kind: ErrCCPGateBlocked, Op: op, Detail: detail, JobCards: jobCards}
}

// persistence classifies a store failure. Store sentinels keep their kind;
// anything else is reported as a retryable persistence error.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &Error{Kind: ErrNotFound, Op: op, Err: err}
	case errors.Is(err, ErrConcurrentModification):
		return &Error{Kind: ErrConcurrentModification, Op: op, Detail: "work order was changed by another session; refetch and retry", Err: err}
	}
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}
