package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid")
	ErrTooMany    = errors.New("too many requests")
	ErrNotExist   = errors.New("object does not exist")
	ErrEmptyIndex = errors.New("cannot build index from zero chunks")

	ErrRemoteAccess     = errors.New("remote access failed")
	ErrDocumentParse    = errors.New("document parse failed")
	ErrEmptyCorpus      = errors.New("no chunks to index")
	ErrEmptyFolder      = fmt.Errorf("%w: folder has no files", ErrEmptyCorpus)
	ErrCacheIO          = errors.New("document cache io failed")
	ErrAnswerGeneration = errors.New("answer generation failed")

	// ErrNotReady is wrapped by both query preconditions so callers can
	// test for either one or tell them apart.
	ErrNotReady           = errors.New("not ready")
	ErrFolderNotSet       = fmt.Errorf("%w: Folder ID not set", ErrNotReady)
	ErrDocumentsNotLoaded = fmt.Errorf("%w: Documents are not loaded. Please set the folder ID again.", ErrNotReady)
)

// RemoteAccessError reports a failed listing or download.
type RemoteAccessError struct {
	Op     string
	Target string
	Err    error
}

func (e *RemoteAccessError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *RemoteAccessError) Unwrap() []error {
	return []error{ErrRemoteAccess, e.Err}
}

// DocumentParseError carries the name of the file that could not be read.
type DocumentParseError struct {
	Name        string
	ContentType string
	Err         error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Name, e.ContentType, e.Err)
}

func (e *DocumentParseError) Unwrap() []error {
	return []error{ErrDocumentParse, e.Err}
}

type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("document cache %s: %v", e.Op, e.Err)
}

func (e *CacheIOError) Unwrap() []error {
	return []error{ErrCacheIO, e.Err}
}

type AnswerGenerationError struct {
	Err error
}

func (e *AnswerGenerationError) Error() string {
	return e.Err.Error()
}

func (e *AnswerGenerationError) Unwrap() []error {
	return []error{ErrAnswerGeneration, e.Err}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotExist)
}

func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}
