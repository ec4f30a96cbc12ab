package icerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories named in spec §7. Kinds are
// a closed set: new failure modes should be expressed as a wrapped cause
// under the closest existing Kind rather than by adding one, unless the
// spec itself grows a new category.
type Kind string

const (
	MemAlloc                  Kind = "MemAlloc"
	ProtocolError             Kind = "ProtocolError"
	AuthenticateError         Kind = "AuthenticateError"
	NodeDown                  Kind = "NodeDown"
	NoSuchNode                Kind = "NoSuchNode"
	NoSuchCluster             Kind = "NoSuchCluster"
	GetConfigByClusterServer  Kind = "GetConfigByClusterServer"
	ConflictingClusterIds     Kind = "ConflictingClusterIds"
	ConflictingIds            Kind = "ConflictingIds"
	NodeAlreadyDefined        Kind = "NodeAlreadyDefined"
	NoNodesFound              Kind = "NoNodesFound"
	NoSuchConfigKey           Kind = "NoSuchConfigKey"
	CorrectConfigInWrongSection Kind = "CorrectConfigInWrongSection"
	WrongConfigNumber         Kind = "WrongConfigNumber"
	NoBooleanValue            Kind = "NoBooleanValue"
	ConfigValueOutOfBounds    Kind = "ConfigValueOutOfBounds"
	NoSectionDefinedYet       Kind = "NoSectionDefinedYet"
	UnknownParameter          Kind = "UnknownParameter"
	CouldNotLockConfiguration Kind = "CouldNotLockConfiguration"
	CheckProcessScript        Kind = "CheckProcessScript"
	ProcessNotAlive           Kind = "ProcessNotAlive"
	FailedToOpenFile          Kind = "FailedToOpenFile"
	InconsistentData          Kind = "InconsistentData"
	MessageChecksum           Kind = "MessageChecksum"
	TranslationIndexOutOfBound Kind = "TranslationIndexOutOfBound"
	StopOrdered               Kind = "StopOrdered"
)

// Error is the carrier type for every Kind above. Detail fields are
// optional and populated only when the failing operation has something
// concrete to add (a source line number in a parsed line or file, a node
// id, an offending key name).
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	Line int    // 1-based source line, 0 when not applicable
	Key  string // offending config key/parameter name, "" when not applicable
	Node uint32 // offending node id, 0 when not applicable
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Line > 0 {
		s = fmt.Sprintf("%s (line %d)", s, e.Line)
	}
	if e.Key != "" {
		s = fmt.Sprintf("%s (key %q)", s, e.Key)
	}
	if e.Node != 0 {
		s = fmt.Sprintf("%s (node %d)", s, e.Node)
	}
	if e.Cause != nil {
		s = fmt.Sprintf("%s: %v", s, e.Cause)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithLine returns a copy of e annotated with a source line number.
func (e *Error) WithLine(line int) *Error {
	c := *e
	c.Line = line
	return &c
}

// WithKey returns a copy of e annotated with an offending key name.
func (e *Error) WithKey(key string) *Error {
	c := *e
	c.Key = key
	return &c
}

// WithNode returns a copy of e annotated with an offending node id.
func (e *Error) WithNode(node uint32) *Error {
	c := *e
	c.Node = node
	return &c
}

// Is reports whether the first *Error in err's chain has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
