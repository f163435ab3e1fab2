package utils

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("file not found")
var ErrEmptyFile = errors.New("remote file is empty or size unavailable")

// ConnectError is a transport or authentication failure while opening a
// control connection.
type ConnectError struct {
	Addr  string
	Stage string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect error: %s %s: %v", e.Stage, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ListError carries the cause of both listing strategies when neither
// produced a listing, or the CWD failure when the path is inaccessible.
type ListError struct {
	Path    string
	CwdErr  error
	MlsdErr error
	ListErr error
}

func (e *ListError) Error() string {
	if e.CwdErr != nil {
		return fmt.Sprintf("list error: cannot access directory '%s': %v", e.Path, e.CwdErr)
	}
	return fmt.Sprintf("list error: both MLSD and LIST failed for '%s'. MLSD: %v, LIST: %v", e.Path, e.MlsdErr, e.ListErr)
}

func (e *ListError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.CwdErr, e.MlsdErr, e.ListErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type SizeError struct {
	Path string
	Err  error
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("size error: %s: %v", e.Path, e.Err)
}

func (e *SizeError) Unwrap() error { return e.Err }

// WorkerError reports a chunk that failed for a reason other than an orderly
// cancellation.
type WorkerError struct {
	Chunk int
	Err   error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("thread %d failed: %v", e.Chunk, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

type ChecksumError struct {
	Path string
	Err  error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum error: %s: %v", e.Path, e.Err)
}

func (e *ChecksumError) Unwrap() error { return e.Err }
