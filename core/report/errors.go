package report

import "github.com/pkg/errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyClaimed    = errors.New("instance already claimed")
	ErrRetryExhausted    = errors.New("retries exhausted")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRender            = errors.New("render failed")
)

func invalidTransition(from, to Status) error {
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}
