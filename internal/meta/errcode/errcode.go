// Package errcode is the error taxonomy of spec §7, as sentinel errors plus
// a code table, in the same shape as the teacher's gm/errors.go
// (Err2CodeMap): a closed set of errors that processors translate directly
// into response codes, never swallowed.
package errcode

import "github.com/pkg/errors"

// Code is the closed status enumeration of spec §7.
type Code int32

const (
	OK Code = iota
	NotFound
	Existed
	InvalidArgument
	LeaderChanged
	StoreFailure
	BalancerRunning
	NoValidHost
	Unknown
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NotFound:
		return "NOT_FOUND"
	case Existed:
		return "EXISTED"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case LeaderChanged:
		return "LEADER_CHANGED"
	case StoreFailure:
		return "STORE_FAILURE"
	case BalancerRunning:
		return "BALANCER_RUNNING"
	case NoValidHost:
		return "NO_VALID_HOST"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors. Callers compare with errors.Is; components that wrap
// these with github.com/pkg/errors.Wrap for stack-trace context keep the
// sentinel identity intact.
var (
	ErrNotFound        = errors.New("not found")
	ErrExisted         = errors.New("existed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrLeaderChanged   = errors.New("leader changed")
	ErrStoreFailure    = errors.New("store failure")
	ErrBalancerRunning = errors.New("balancer already running")
	ErrNoValidHost     = errors.New("no valid host to place partition")
	ErrUnknown         = errors.New("unknown error")
)

// codeTable maps each sentinel to its wire code, mirroring the teacher's
// Err2CodeMap pattern.
var codeTable = map[error]Code{
	ErrNotFound:        NotFound,
	ErrExisted:         Existed,
	ErrInvalidArgument: InvalidArgument,
	ErrLeaderChanged:   LeaderChanged,
	ErrStoreFailure:    StoreFailure,
	ErrBalancerRunning: BalancerRunning,
	ErrNoValidHost:     NoValidHost,
}

// CodeOf classifies err into the closed enumeration. nil maps to OK; an
// error not in the taxonomy maps to Unknown rather than being swallowed.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	for sentinel, code := range codeTable {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return Unknown
}
