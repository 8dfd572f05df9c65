package billing

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistudio/backend/internal/domain/shared"
)

// chunkedReader yields its segments one Read at a time, so tests control
// exactly where chunk boundaries fall.
type chunkedReader struct {
	segments []string
	closed   bool
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.segments) == 0 {
		return 0, io.EOF
	}
	seg := r.segments[0]
	n := copy(p, seg)
	if n < len(seg) {
		r.segments[0] = seg[n:]
	} else {
		r.segments = r.segments[1:]
	}
	return n, nil
}

func (r *chunkedReader) Close() error {
	r.closed = true
	return nil
}

// recordingDeductor captures every Deduct call
type recordingDeductor struct {
	calls []int64
	err   error
}

func (d *recordingDeductor) Deduct(_ context.Context, _ uuid.UUID, _ string, usage *int64, allowNegative bool) (*DeductionResult, error) {
	if !allowNegative {
		panic("stream settlement must allow a negative balance")
	}
	d.calls = append(d.calls, *usage)
	if d.err != nil {
		return nil, d.err
	}
	return freeResult(), nil
}

func drain(t *testing.T, r io.Reader) string {
	t.Helper()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestStreamMeter_CountsEventPayloads(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     int64
	}{
		{
			name:     "plain text payload",
			segments: []string{"data: hello world\n\n"},
			want:     11,
		},
		{
			name:     "json content field wins",
			segments: []string{"data: {\"content\":\"abcde\",\"event\":\"message\"}\n\n"},
			want:     5,
		},
		{
			name:     "json without content sums string leaves",
			segments: []string{"data: {\"delta\":\"abc\",\"meta\":{\"note\":\"xy\"}}\n\n"},
			want:     5,
		},
		{
			name:     "comment and event lines are free",
			segments: []string{": keepalive\nevent: done\ndata: abc\n"},
			want:     3,
		},
		{
			name:     "line split across chunk boundaries",
			segments: []string{"data: hel", "lo wo", "rld\n"},
			want:     11,
		},
		{
			name:     "multibyte runes counted as characters",
			segments: []string{"data: 你好世界\n"},
			want:     4,
		},
		{
			name:     "trailing line without newline counted at settlement",
			segments: []string{"data: tail"},
			want:     4,
		},
		{
			name:     "empty payload is free",
			segments: []string{"data:\ndata:   \n"},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deductor := &recordingDeductor{}
			upstream := &chunkedReader{segments: tt.segments}
			meter := NewStreamMeter(upstream, deductor, uuid.New(), "wf-1")

			raw := drain(t, meter)
			assert.Equal(t, strings.Join(tt.segments, ""), raw, "stream must pass through unmodified")

			require.Len(t, deductor.calls, 1)
			assert.Equal(t, tt.want, deductor.calls[0])
		})
	}
}

func TestStreamMeter_SettlesExactlyOnce(t *testing.T) {
	t.Run("eof then close settles once", func(t *testing.T) {
		deductor := &recordingDeductor{}
		upstream := &chunkedReader{segments: []string{"data: abc\n"}}
		meter := NewStreamMeter(upstream, deductor, uuid.New(), "wf-1")

		drain(t, meter)
		require.NoError(t, meter.Close())

		assert.Len(t, deductor.calls, 1)
		assert.True(t, upstream.closed)
	})

	t.Run("early close settles partial transmission", func(t *testing.T) {
		deductor := &recordingDeductor{}
		upstream := &chunkedReader{segments: []string{"data: abc\n", "data: never read\n"}}
		meter := NewStreamMeter(upstream, deductor, uuid.New(), "wf-1")

		buf := make([]byte, 64)
		n, err := meter.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "data: abc\n", string(buf[:n]))

		require.NoError(t, meter.Close())
		require.Len(t, deductor.calls, 1)
		assert.Equal(t, int64(3), deductor.calls[0])
	})

	t.Run("settlement failure is absorbed", func(t *testing.T) {
		deductor := &recordingDeductor{err: shared.ErrInsufficientBalance}
		var settled SettlementResult
		upstream := &chunkedReader{segments: []string{"data: abc\n"}}
		meter := NewStreamMeter(upstream, deductor, uuid.New(), "wf-1",
			WithSettlementHook(func(r SettlementResult) { settled = r }))

		out, err := io.ReadAll(meter)
		require.NoError(t, err, "settlement failure must not surface to the reader")
		assert.Equal(t, "data: abc\n", string(out))
		assert.ErrorIs(t, settled.Err, shared.ErrInsufficientBalance)
		assert.Equal(t, int64(3), settled.Usage)
	})
}

// failingReader returns some data and then a non-EOF error
type failingReader struct {
	data string
	err  error
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func (r *failingReader) Close() error { return nil }

func TestStreamMeter_UpstreamErrorSettles(t *testing.T) {
	deductor := &recordingDeductor{}
	upstreamErr := errors.New("connection reset")
	meter := NewStreamMeter(&failingReader{data: "data: abc\n", err: upstreamErr}, deductor, uuid.New(), "wf-1")

	buf := make([]byte, 64)
	_, err := meter.Read(buf)
	require.NoError(t, err)
	_, err = meter.Read(buf)
	assert.ErrorIs(t, err, upstreamErr)

	require.Len(t, deductor.calls, 1)
	assert.Equal(t, int64(3), deductor.calls[0])
}

func TestStreamMeter_OversizedLine(t *testing.T) {
	t.Run("oversized payload line keeps counting byte-wise", func(t *testing.T) {
		deductor := &recordingDeductor{}
		huge := strings.Repeat("a", maxPendingLine+500)
		upstream := &chunkedReader{segments: []string{"data: " + huge + "\ndata: xy\n"}}
		meter := NewStreamMeter(upstream, deductor, uuid.New(), "wf-1")

		drain(t, meter)
		require.Len(t, deductor.calls, 1)
		// The overflowed line is billed approximately, the following line
		// exactly; the total must cover at least the full payload.
		assert.GreaterOrEqual(t, deductor.calls[0], int64(len(huge)+2))
	})

	t.Run("oversized comment line is free", func(t *testing.T) {
		deductor := &recordingDeductor{}
		huge := strings.Repeat("b", maxPendingLine+500)
		upstream := &chunkedReader{segments: []string{": " + huge + "\ndata: xy\n"}}
		meter := NewStreamMeter(upstream, deductor, uuid.New(), "wf-1")

		drain(t, meter)
		require.Len(t, deductor.calls, 1)
		assert.Equal(t, int64(2), deductor.calls[0])
	})
}
