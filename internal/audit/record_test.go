package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errSink struct {
	err      error
	writes   int
	closed   bool
	closeErr error
}

func (s *errSink) Write(context.Context, FlushRecord) error {
	s.writes++
	return s.err
}

func (s *errSink) Close() error {
	s.closed = true
	return s.closeErr
}

func TestMultiSinkWritesEverySink(t *testing.T) {
	boom := errors.New("boom")
	a := &errSink{err: boom}
	b := &errSink{}
	multi := MultiSink{a, b}

	err := multi.Write(context.Background(), FlushRecord{FlushID: "f"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.writes)
	assert.Equal(t, 1, b.writes, "a failing sink must not stop the others")

	closeErr := errors.New("close")
	b.closeErr = closeErr
	require.ErrorIs(t, multi.Close(), closeErr)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMemorySinkDropsPastCapacity(t *testing.T) {
	sink := NewMemorySink(1)
	require.NoError(t, sink.Write(context.Background(), FlushRecord{FlushID: "a"}))
	require.NoError(t, sink.Write(context.Background(), FlushRecord{FlushID: "b"}))

	rec := <-sink.Records()
	assert.Equal(t, "a", rec.FlushID)
	select {
	case extra := <-sink.Records():
		t.Fatalf("unexpected record %q", extra.FlushID)
	default:
	}
}

func TestFlushRecordSucceeded(t *testing.T) {
	assert.True(t, FlushRecord{}.Succeeded())
	assert.False(t, FlushRecord{Error: "rejected"}.Succeeded())
}
