package ctxerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCause(t *testing.T) {
	ctx := context.Background()

	errNew := errors.New("new")
	fmtWrap := fmt.Errorf("fmt: %w", errNew)
	pkgWrap := pkgerrors.Wrap(errNew, "pkg")
	pkgFmtWrap := pkgerrors.Wrap(fmtWrap, "pkg")
	fmtPkgWrap := fmt.Errorf("fmt: %w", pkgWrap)
	ctxWrap := Wrap(ctx, errNew, "wrap")
	ctxDoubleWrap := Wrap(ctx, ctxWrap, "re-wrap")
	fmtPkgCtxWrap := fmt.Errorf("fmt: %w", pkgerrors.Wrap(ctxWrap, "pkg"))

	cases := []struct {
		in, out error
	}{
		{nil, nil},
		{io.EOF, io.EOF},
		{errNew, errNew},
		{fmtWrap, errNew},
		{pkgWrap, errNew},
		{pkgFmtWrap, errNew},
		{fmtPkgWrap, errNew},
		{ctxWrap, errNew},
		{ctxDoubleWrap, errNew},
		{fmtPkgCtxWrap, errNew},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%T: %[1]v", c.in), func(t *testing.T) {
			got := Cause(c.in)
			require.Equal(t, c.out, got)
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	ctx := context.Background()

	err := Wrapf(ctx, io.ErrUnexpectedEOF, "read ledger row %d", 3)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, strings.HasPrefix(err.Error(), "read ledger row 3: "))

	require.NoError(t, Wrap(ctx, nil, "nothing"))

	err = New(ctx, "ledger is ahead")
	assert.Contains(t, err.Error(), "ledger is ahead")
	assert.Contains(t, Cause(err).Error(), "ledger is ahead")
}

func TestStackTraceCapturedOnce(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, StackTrace(errors.New("plain")))

	inner := Wrap(ctx, io.EOF, "inner")
	frames := StackTrace(inner)
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0], "ctxerr")

	outer := Wrap(ctx, inner, "outer")
	assert.Equal(t, frames, StackTrace(outer))
}
