package property

import (
	"errors"
	"fmt"
)

// Registration errors. Hosts are expected to abort boot on any of them.
var (
	ErrDuplicateName        = errors.New("duplicate property name")
	ErrInvalidName          = errors.New("invalid property name")
	ErrInvalidType          = errors.New("invalid property type")
	ErrHandleTypeNotAllowed = errors.New("handle types can not be stored in properties")
	ErrSizeNotSupported     = errors.New("fixed size must be 1, 2, 4 or 8 bytes")
	ErrInvalidAccess        = errors.New("invalid property access")
	ErrRegistrationFinished = errors.New("property registration is finished")
)

// Runtime errors. Get failures are reported, never returned to game code.
var (
	ErrGetCallbackMissing  = errors.New("get callback is not assigned for virtual property")
	ErrSetCallbackMissing  = errors.New("set callback is not assigned for virtual property")
	ErrRecursiveCallback   = errors.New("recursive call for virtual property")
	ErrHandlerFailed       = errors.New("property handler failed")
	ErrNoInvoker           = errors.New("no handler invoker installed")
	ErrNotReadable         = errors.New("property is not readable on this side")
	ErrNotWritable         = errors.New("property is not writable on this side")
	ErrNotFixed            = errors.New("property is not a fixed size value")
	ErrUnknownProperty     = errors.New("unknown property")
	ErrRegistratorMismatch = errors.New("properties belong to different registrators")
	ErrMalformedStream     = errors.New("malformed property stream")
)

// RegistrationError is returned by Registrator.Register.
type RegistrationError struct {
	Class    string
	Property string
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s::%s: %v", e.Class, e.Property, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
