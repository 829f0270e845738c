package ync

import (
	"context"
	"fmt"
)

// Command is the request kind carried in the envelope's cmd attribute.
type Command string

const (
	Get Command = "GET"
	Put Command = "PUT"
)

// GetParam is the sentinel value GET requests place where the current value
// should be echoed back.
const GetParam = "GetParam"

// ZonePlaceholder marks where the active source's zone path is substituted.
const ZonePlaceholder = "{zone}"

// ResultCode is the RC attribute on a response envelope.
type ResultCode int

const (
	RCOK            ResultCode = 0
	RCBadNode       ResultCode = 2
	RCBadParameter  ResultCode = 3
	RCSystemError   ResultCode = 4
	RCInternalError ResultCode = 5
)

// Description returns a human readable explanation of the code.
func (c ResultCode) Description() string {
	switch c {
	case RCOK:
		return "ok"
	case RCBadNode:
		return "error in node designation"
	case RCBadParameter:
		return "error in parameter (value/range)"
	case RCSystemError:
		return "not successfully set due to a system error"
	case RCInternalError:
		return "internal error"
	default:
		return fmt.Sprintf("unknown result code %d", int(c))
	}
}

// Exchange describes one completed (or failed) request/response round trip.
type Exchange struct {
	Command  Command
	Fragment string
	ZonePath string
	RC       *ResultCode
	Duration int64 // milliseconds
	Err      error
}

// Recorder receives every exchange performed by a Client, with the context
// the exchange ran under.
type Recorder interface {
	RecordExchange(ctx context.Context, exchange Exchange)
}
