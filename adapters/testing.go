package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/opensyte/workflow-core/core"
)

// FixedClock is a steppable Clock used by deterministic scheduler/engine
// tests (spec §6 "Clock.now() injected for deterministic scheduler tests").
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{now: start}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// NoopEmailSink always reports success without sending anything. Useful as
// a safe default when no provider is configured (distinct from "skipped"
// semantics, which are SMS-specific per spec §4.2).
type NoopEmailSink struct{}

func (NoopEmailSink) Send(_ context.Context, _ EmailMessage) (EmailResult, error) {
	return EmailResult{Success: true, MessageID: "noop"}, nil
}

// UnconfiguredSmsSink reports every send as skipped, matching spec §4.2's
// "adapter unconfigured" contract.
type UnconfiguredSmsSink struct{}

func (UnconfiguredSmsSink) Send(_ context.Context, _ SMSMessage) (SMSResult, error) {
	return SMSResult{Success: true, Skipped: true}, nil
}

// RecordingEmailSink captures every message sent through it, for test
// assertions.
type RecordingEmailSink struct {
	mu       sync.Mutex
	Sent     []EmailMessage
	NextID   string
	FailNext bool
}

func (s *RecordingEmailSink) Send(_ context.Context, msg EmailMessage) (EmailResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, msg)
	if s.FailNext {
		s.FailNext = false
		return EmailResult{Success: false, Error: "send failed"}, nil
	}
	id := s.NextID
	if id == "" {
		id = "msg-1"
	}
	return EmailResult{Success: true, MessageID: id}, nil
}

// InMemoryRecordStore is a minimal RecordStore used by engine tests that
// exercise QUERY/CREATE_RECORD/UPDATE_RECORD without a real database.
type InMemoryRecordStore struct {
	mu      sync.Mutex
	records map[string][]map[string]core.Value
	seq     int
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: map[string][]map[string]core.Value{}}
}

func (s *InMemoryRecordStore) Find(ctx context.Context, q RecordQuery) (core.Value, error) {
	items, _, err := s.FindMany(ctx, q)
	if err != nil {
		return core.Null(), err
	}
	if len(items) == 0 {
		return core.Null(), nil
	}
	return items[0], nil
}

func (s *InMemoryRecordStore) FindMany(_ context.Context, q RecordQuery) ([]core.Value, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Value
	for _, rec := range s.records[q.Model] {
		if matchesWhere(rec, q.Where) {
			out = append(out, core.ObjectValue(rec))
		}
	}
	total := len(out)
	if q.Offset > 0 && q.Offset < len(out) {
		out = out[q.Offset:]
	} else if q.Offset >= len(out) {
		out = nil
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (s *InMemoryRecordStore) Create(_ context.Context, w RecordWrite) (core.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec := map[string]core.Value{}
	for k, v := range w.Fields {
		rec[k] = v
	}
	rec["id"] = core.StringValue(recordID(s.seq))
	s.records[w.Model] = append(s.records[w.Model], rec)
	return core.ObjectValue(rec), nil
}

func (s *InMemoryRecordStore) Update(_ context.Context, w RecordWrite) (core.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records[w.Model] {
		if id, ok := rec["id"].AsString(); ok && id == w.RecordID {
			for k, v := range w.Fields {
				rec[k] = v
			}
			s.records[w.Model][i] = rec
			return core.ObjectValue(rec), nil
		}
	}
	return core.Null(), nil
}

func matchesWhere(rec map[string]core.Value, where map[string]core.Value) bool {
	for k, v := range where {
		if !core.Equal(rec[k], v) {
			return false
		}
	}
	return true
}

func recordID(seq int) string {
	const digits = "0123456789"
	if seq == 0 {
		return "0"
	}
	var b []byte
	for seq > 0 {
		b = append([]byte{digits[seq%10]}, b...)
		seq /= 10
	}
	return string(b)
}
