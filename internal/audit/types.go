package audit

import (
	"errors"
	"time"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// Outcome classifies how an exchange ended.
type Outcome string

const (
	OutcomeOK            Outcome = "OK"
	OutcomeWarning       Outcome = "WARNING"
	OutcomeTimeout       Outcome = "TIMEOUT"
	OutcomeUnreachable   Outcome = "UNREACHABLE"
	OutcomeProtocolError Outcome = "PROTOCOL_ERROR"
	OutcomeError         Outcome = "ERROR"
)

var validOutcomes = map[string]Outcome{
	string(OutcomeOK):            OutcomeOK,
	string(OutcomeWarning):       OutcomeWarning,
	string(OutcomeTimeout):       OutcomeTimeout,
	string(OutcomeUnreachable):   OutcomeUnreachable,
	string(OutcomeProtocolError): OutcomeProtocolError,
	string(OutcomeError):         OutcomeError,
}

// OutcomeOf derives the outcome of an exchange from its error and result code.
func OutcomeOf(exchange ync.Exchange) Outcome {
	var timeout *ync.TimeoutError
	var unreachable *ync.UnreachableError
	var protocol *ync.ProtocolError

	switch {
	case exchange.Err == nil && exchange.RC != nil && *exchange.RC != ync.RCOK:
		return OutcomeWarning
	case exchange.Err == nil:
		return OutcomeOK
	case errors.As(exchange.Err, &timeout):
		return OutcomeTimeout
	case errors.As(exchange.Err, &unreachable):
		return OutcomeUnreachable
	case errors.As(exchange.Err, &protocol):
		return OutcomeProtocolError
	default:
		return OutcomeError
	}
}

// Record is one stored receiver exchange.
type Record struct {
	ExchangeID string    `json:"exchange_id"`
	Timestamp  time.Time `json:"timestamp"`
	Command    string    `json:"command"`
	Fragment   string    `json:"fragment"`
	ZonePath   string    `json:"zone_path"`
	ResultCode *int      `json:"result_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Outcome    Outcome   `json:"outcome"`
	Error      *string   `json:"error,omitempty"`
	RequestID  *string   `json:"request_id,omitempty"`
}

// WriteInput holds the fields of a new record.
type WriteInput struct {
	Command    string
	Fragment   string
	ZonePath   string
	ResultCode *int
	DurationMs int64
	Outcome    Outcome
	Error      *string
	RequestID  *string
}

// QueryFilters narrows a history query.
type QueryFilters struct {
	Outcome   *Outcome
	Command   *string
	RequestID *string
	Since     *time.Time
	Limit     int
	Offset    int
}
