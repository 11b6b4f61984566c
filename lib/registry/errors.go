package registry

import "fmt"

// RetCode enumerates the fatal error conditions the engine ever reports
// from the registry/protocol layer (spec.md §7: "the only fatal error
// paths are wire corruption, DID exhaustion, and a misrouted DID").
// Mirrors the teacher's store.RetCode shape: a small closed enum plus a
// formatted Error() wrapper.
type RetCode int

const (
	RetCOK RetCode = iota
	RetCDIDSpaceExhausted
	RetCWrongViewKind
	RetCMalformedWireMessage
	RetCMisroutedDID
	RetCNoReservationSource
)

func (c RetCode) String() string {
	switch c {
	case RetCOK:
		return "ok"
	case RetCDIDSpaceExhausted:
		return "did space exhausted"
	case RetCWrongViewKind:
		return "wrong view kind"
	case RetCMalformedWireMessage:
		return "malformed wire message"
	case RetCMisroutedDID:
		return "misrouted did"
	case RetCNoReservationSource:
		return "no reservation source configured"
	default:
		return fmt.Sprintf("retcode(%d)", int(c))
	}
}

// Error is a typed registry/protocol failure.
type Error struct {
	Code RetCode
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry error (code %s): %s", e.Code, e.Msg)
}

// NewError creates a registry Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}
