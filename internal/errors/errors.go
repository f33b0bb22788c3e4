package errors

import "errors"

// Structural errors raised while mapping entities to paths.
var (
	ErrParentNotFound = errors.New("parent folder not found")
	ErrCycle          = errors.New("folder parent cycle detected")
	ErrInvalidName    = errors.New("invalid entity name")
	ErrDuplicateName  = errors.New("duplicate sibling name")
)

// Metadata store errors.
var (
	ErrRecordNotFound  = errors.New("metadata record not found")
	ErrAmbiguousRecord = errors.New("ambiguous metadata record")
)

// Converter errors.
var (
	ErrFormatConversion = errors.New("format conversion failed")
)

// Remote content service errors.
var (
	ErrAuthentication    = errors.New("remote authentication failed")
	ErrNetworkTimeout    = errors.New("remote request timed out")
	ErrRemoteNotFound    = errors.New("remote document not found")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)
