package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxPendingLine caps the line-reassembly buffer. A well-formed event line is
// far smaller; past the cap the rest of the line is counted byte-wise without
// being retained, keeping memory bounded regardless of stream length.
const maxPendingLine = 1 << 20 // 1MB

// dataPrefix marks a server-push event payload line
const dataPrefix = "data:"

// Deductor applies one metered deduction. Satisfied by *Service.
type Deductor interface {
	Deduct(ctx context.Context, userID uuid.UUID, workflowID string, usage *int64, allowNegative bool) (*DeductionResult, error)
}

// SettlementResult reports the best-effort deduction attempted when a
// metered stream terminates. Settlement failures are never surfaced to the
// stream consumer; this type exists so operators and tests can observe them.
type SettlementResult struct {
	UserID     uuid.UUID
	WorkflowID string
	Usage      int64
	Result     *DeductionResult
	Err        error
}

// StreamMeter wraps one upstream event stream, forwarding every byte
// unmodified while extracting the billable character count from complete
// "data:" payload lines. When the stream terminates for any reason (natural
// end, consumer disconnect, upstream error) it settles exactly once with
// allowNegative deduction: a partially-delivered stream is billed for what
// was actually transmitted, never aborted mid-flight to enforce a balance
// floor.
//
// A StreamMeter is owned by a single stream and is not safe for concurrent
// readers.
type StreamMeter struct {
	upstream   io.ReadCloser
	deductor   Deductor
	userID     uuid.UUID
	workflowID string
	logger     *zap.Logger
	onSettle   func(SettlementResult)

	pending          []byte // partial line carried across chunk boundaries
	overflow         bool   // current line exceeded maxPendingLine
	overflowBillable bool   // the overflowed line was an event payload
	count            int64  // accumulated billable characters
	settle           sync.Once
}

// StreamMeterOption is a functional option for configuring the meter
type StreamMeterOption func(*StreamMeter)

// WithMeterLogger sets the logger used for settlement reporting
func WithMeterLogger(logger *zap.Logger) StreamMeterOption {
	return func(m *StreamMeter) {
		m.logger = logger
	}
}

// WithSettlementHook registers a callback invoked once with the settlement
// outcome, after the deduction attempt
func WithSettlementHook(hook func(SettlementResult)) StreamMeterOption {
	return func(m *StreamMeter) {
		m.onSettle = hook
	}
}

// NewStreamMeter wraps an upstream stream with metered billing for the given
// user and workflow
func NewStreamMeter(upstream io.ReadCloser, deductor Deductor, userID uuid.UUID, workflowID string, opts ...StreamMeterOption) *StreamMeter {
	m := &StreamMeter{
		upstream:   upstream,
		deductor:   deductor,
		userID:     userID,
		workflowID: workflowID,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Read forwards upstream bytes to the caller, feeding a copy of each chunk
// through the line scanner. Any terminal error from upstream, io.EOF
// included, triggers settlement before it is returned.
func (m *StreamMeter) Read(p []byte) (int, error) {
	n, err := m.upstream.Read(p)
	if n > 0 {
		m.scan(p[:n])
	}
	if err != nil {
		m.doSettle()
	}
	return n, err
}

// Close settles if the stream has not already terminated, then closes
// upstream. It is how a consumer disconnect still bills the partial
// transmission.
func (m *StreamMeter) Close() error {
	m.doSettle()
	return m.upstream.Close()
}

// Usage returns the billable character count accumulated so far
func (m *StreamMeter) Usage() int64 {
	return m.count
}

// scan splits the chunk into newline-delimited records, accounting for lines
// that span chunk boundaries via the pending buffer
func (m *StreamMeter) scan(chunk []byte) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			m.buffer(chunk)
			return
		}
		m.buffer(chunk[:i])
		m.flushLine()
		chunk = chunk[i+1:]
	}
}

// buffer appends partial-line bytes, spilling into byte-wise counting once
// the line exceeds the cap
func (m *StreamMeter) buffer(b []byte) {
	if m.overflow {
		if m.overflowBillable {
			m.count += int64(len(b))
		}
		return
	}
	if len(m.pending)+len(b) > maxPendingLine {
		m.overflow = true
		m.overflowBillable = bytes.HasPrefix(bytes.TrimSpace(m.pending), []byte(dataPrefix))
		if m.overflowBillable {
			payload := strings.TrimSpace(strings.TrimPrefix(string(m.pending), dataPrefix))
			m.count += int64(utf8.RuneCountInString(payload)) + int64(len(b))
		}
		m.pending = m.pending[:0]
		return
	}
	m.pending = append(m.pending, b...)
}

// flushLine processes one complete line and resets the pending buffer. A
// line that overflowed the buffer was already counted byte-wise.
func (m *StreamMeter) flushLine() {
	if m.overflow {
		m.pending = m.pending[:0]
		m.overflow = false
		m.overflowBillable = false
		return
	}
	line := strings.TrimRight(string(m.pending), "\r")
	m.pending = m.pending[:0]

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return
	}
	m.count += billableLength(payload)
}

// billableLength extracts the billable character count from one event
// payload. Structured payloads bill the designated content field, falling
// back to every string-valued leaf; anything else bills the raw payload
// length.
func billableLength(payload string) int64 {
	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return int64(utf8.RuneCountInString(payload))
	}
	if obj, ok := parsed.(map[string]any); ok {
		if content, ok := obj["content"].(string); ok {
			return int64(utf8.RuneCountInString(content))
		}
	}
	return stringLeafLength(parsed)
}

// stringLeafLength sums the character counts of all string leaves in a
// decoded JSON value
func stringLeafLength(v any) int64 {
	switch val := v.(type) {
	case string:
		return int64(utf8.RuneCountInString(val))
	case map[string]any:
		var total int64
		for _, child := range val {
			total += stringLeafLength(child)
		}
		return total
	case []any:
		var total int64
		for _, child := range val {
			total += stringLeafLength(child)
		}
		return total
	}
	return 0
}

// doSettle performs the best-effort deduction exactly once. The stream's own
// context may already be canceled when the consumer disconnected, so the
// deduction runs on a background context; billing for delivered bytes must
// not depend on the request still being alive.
func (m *StreamMeter) doSettle() {
	m.settle.Do(func() {
		if len(m.pending) > 0 || m.overflow {
			m.flushLine()
		}

		usage := m.count
		result, err := m.deductor.Deduct(context.Background(), m.userID, m.workflowID, &usage, true)
		if err != nil {
			// The bytes are already with the consumer; a failed settlement
			// is logged and absorbed, never raised.
			m.logger.Error("stream settlement deduction failed",
				zap.String("user_id", m.userID.String()),
				zap.String("workflow_id", m.workflowID),
				zap.Int64("usage", usage),
				zap.Error(err),
			)
		} else if !result.Free {
			m.logger.Info("stream settlement deducted",
				zap.String("user_id", m.userID.String()),
				zap.String("workflow_id", m.workflowID),
				zap.Int64("usage", usage),
				zap.String("cost", result.Cost.String()),
			)
		}

		if m.onSettle != nil {
			m.onSettle(SettlementResult{
				UserID:     m.userID,
				WorkflowID: m.workflowID,
				Usage:      usage,
				Result:     result,
				Err:        err,
			})
		}
	})
}
