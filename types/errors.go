package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Error classes. Every ledger failure matches exactly one of them with errors.Is.
var (
	ErrAuthorization  = errors.New("authorization")
	ErrStateConflict  = errors.New("state conflict")
	ErrNotFound       = errors.New("not found")
	ErrResourceLimit  = errors.New("resource limit")
	ErrTemporal       = errors.New("temporal")
	ErrValidation     = errors.New("validation")
	ErrPaused         = errors.New("paused")
	ErrUnknownCommand = errors.New("unknown operation")
)

// Failure is a typed ledger error. Its message reads like the revert it
// stands for, e.g. `AlreadyVoted("0x…")`.
//
// Declare a package level prototype and derive concrete failures with With:
//
//	var ErrAlreadyVoted = types.NewFailure(types.ErrStateConflict, "AlreadyVoted")
//	return ErrAlreadyVoted.With(worker)
//
// errors.Is matches a derived failure against its prototype and its class.
type Failure struct {
	Name  string
	Args  []any
	Class error
}

func NewFailure(class error, name string) *Failure {
	return &Failure{Name: name, Class: class}
}

// With returns a copy of the failure carrying args.
func (f *Failure) With(args ...any) *Failure {
	return &Failure{Name: f.Name, Args: args, Class: f.Class}
}

func (f *Failure) Error() string {
	parts := make([]string, 0, len(f.Args))
	for _, arg := range f.Args {
		parts = append(parts, formatArg(arg))
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ", "))
}

func (f *Failure) Is(target error) bool {
	if target == f.Class {
		return true
	}
	var other *Failure
	if errors.As(target, &other) {
		return other.Name == f.Name
	}
	return false
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case *uint256.Int:
		return v.Dec()
	case string:
		return fmt.Sprintf("%q", v)
	case fmt.Stringer:
		switch arg.(type) {
		case Address, Hash:
			return fmt.Sprintf("%q", v.String())
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ClassOf returns the class the error belongs to, or nil for infrastructure errors.
func ClassOf(err error) error {
	for _, class := range []error{
		ErrAuthorization, ErrStateConflict, ErrNotFound, ErrResourceLimit,
		ErrTemporal, ErrValidation, ErrPaused, ErrUnknownCommand,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
