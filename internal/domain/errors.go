package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrPrecondition   = errors.New("precondition failed")
	ErrStorage        = errors.New("storage unavailable")
	ErrTransientIO    = errors.New("artifact io failed")
	ErrSignerNotParty = errors.New("signer is not a party to this contract")
	ErrTokenInvalid   = errors.New("access token invalid")
	ErrInvalidInput   = errors.New("invalid input")
)

// StorageError is returned by every storage-dependent call once artifact
// root resolution has failed. It names every root that was tried.
type StorageError struct {
	Attempted []string
	Causes    []error
}

func (e *StorageError) Error() string {
	msg := "no writable artifact root; attempted " + strings.Join(e.Attempted, ", ")
	if len(e.Causes) > 0 {
		parts := make([]string, 0, len(e.Causes))
		for _, c := range e.Causes {
			if c != nil {
				parts = append(parts, c.Error())
			}
		}
		if len(parts) > 0 {
			msg += " (" + strings.Join(parts, "; ") + ")"
		}
	}
	return msg
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IOError wraps a read or write failure on an otherwise usable root.
type IOError struct {
	Op         string
	ContractID string
	Location   string
	Err        error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s artifact %s for contract %s: %v", e.Op, e.Location, e.ContractID, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrTransientIO
}
