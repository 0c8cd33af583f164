// Package ctxerr provides functions to wrap errors with annotations and
// stack traces.
//
// Typical uses of this package should be to call New or Wrap[f] as close as
// possible from where the error is encountered (or where it needs to be
// created for New). It is fine to wrap the error with more annotations
// along the way, by calling Wrap[f]. Only the first call captures a stack
// trace.
package ctxerr

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rotisserie/eris"
)

// New creates a new error with the provided error message.
func New(ctx context.Context, errMsg string) error {
	return ensureCommonMetadata(ctx, pkgerrors.New(errMsg))
}

// Wrap annotates err with the provided message.
func Wrap(ctx context.Context, err error, msg string) error {
	err = ensureCommonMetadata(ctx, err)
	// do not wrap with eris.Wrap, as we want only the root error closest to the
	// actual error condition to capture the stack trace, others just wrap using
	// pkg/errors.
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with the provided formatted message.
func Wrapf(ctx context.Context, err error, fmsg string, args ...interface{}) error {
	err = ensureCommonMetadata(ctx, err)
	return pkgerrors.Wrapf(err, fmsg, args...)
}

// Cause returns the root error in err's chain.
func Cause(err error) error {
	for {
		uerr := errors.Unwrap(err)
		if uerr == nil {
			return err
		}
		err = uerr
	}
}

// StackTrace returns the locations of the stack captured for err, or nil if
// no error in its chain carries one.
func StackTrace(err error) []string {
	// both eris internal error types implement StackFrames, and Unpack only
	// reports locations when called directly on one of them.
	var sf interface{ StackFrames() []uintptr }
	if !errors.As(err, &sf) {
		return nil
	}

	unpacked := eris.Unpack(sf.(error))
	frames := make([]string, 0, len(unpacked.ErrRoot.Stack))
	for _, frame := range unpacked.ErrRoot.Stack {
		frames = append(frames, fmt.Sprintf("%s:%d", frame.File, frame.Line))
	}
	return frames
}

func ensureCommonMetadata(ctx context.Context, err error) error {
	var sf interface{ StackFrames() []uintptr }
	if err != nil && !errors.As(err, &sf) {
		// no eris error nowhere in the chain, add the common metadata with the stack trace
		err = eris.Wrapf(err, "timestamp: %s", time.Now().UTC().Format(time.RFC3339))
	}
	return err
}
