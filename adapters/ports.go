// Package adapters defines the narrow outbound capability ports the core
// calls through (spec §6): EmailSink, SmsSink, RecordStore, Clock,
// CronParser. Real provider transports, ORMs and cron libraries are wired
// behind these ports so the core stays decoupled from any one
// implementation (Design Note "ORM dependency").
package adapters

import (
	"context"
	"time"

	"github.com/opensyte/workflow-core/core"
)

// EmailMessage is the input to EmailSink.Send.
type EmailMessage struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	FromName    string
	FromEmail   string
	ReplyTo     string
	CC          []string
	BCC         []string
	Attachments []Attachment
}

// Attachment is a named blob to attach to an outbound email.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// EmailResult is the outcome of EmailSink.Send.
type EmailResult struct {
	Success   bool
	MessageID string
	Error     string
}

// EmailSink is the narrow port the EMAIL node interpreter calls through.
type EmailSink interface {
	Send(ctx context.Context, msg EmailMessage) (EmailResult, error)
}

// SMSMessage is the input to SmsSink.Send.
type SMSMessage struct {
	To         string
	Message    string
	FromNumber string
	MediaURL   string
}

// SMSResult is the outcome of SmsSink.Send. An unconfigured provider must
// return Skipped=true, Success=true rather than an error (spec §4.2).
type SMSResult struct {
	Success   bool
	MessageSID string
	Status    string
	Skipped   bool
	Error     string
}

// SmsSink is the narrow port the SMS node interpreter calls through.
type SmsSink interface {
	Send(ctx context.Context, msg SMSMessage) (SMSResult, error)
}

// RecordQuery is the input to RecordStore.Find/FindMany.
type RecordQuery struct {
	Model          string
	OrganizationID core.ID
	Where          map[string]core.Value
	OrderBy        string
	Limit          int
	Offset         int
	Select         []string
	Include        []string
}

// RecordWrite is the input to RecordStore.Create/Update.
type RecordWrite struct {
	Model          string
	OrganizationID core.ID
	RecordID       string // set for Update, empty for Create
	Fields         map[string]core.Value
}

// RecordStore is the narrow persistence port QUERY/CREATE_RECORD/
// UPDATE_RECORD nodes call through (Design Note "ORM dependency").
type RecordStore interface {
	Find(ctx context.Context, q RecordQuery) (core.Value, error)
	FindMany(ctx context.Context, q RecordQuery) ([]core.Value, int, error)
	Create(ctx context.Context, w RecordWrite) (core.Value, error)
	Update(ctx context.Context, w RecordWrite) (core.Value, error)
}

// Clock is injected for deterministic scheduler/engine tests (spec §6).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the production Clock backed by time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// CronParser parses a standard 5-field cron expression and returns the
// next fire time strictly after `from`, in the given IANA timezone name
// (spec §6). An empty tz means UTC.
type CronParser interface {
	Next(expr string, from time.Time, tz string) (time.Time, error)
}
