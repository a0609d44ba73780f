package intake

import (
	"errors"
	"fmt"
)

// Kind classifies why an upload was rejected. Every kind is terminal.
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindFileTooLarge      Kind = "file_too_large"
	KindCorruptAudio      Kind = "corrupt_audio"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFileTooLarge      = errors.New("audio file too large")
	ErrCorruptAudio      = errors.New("corrupt audio")
	ErrInvalidMetadata   = errors.New("invalid upload metadata")
)

// Error is a rejected upload. It matches its kind's sentinel under errors.Is.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel(), e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindUnsupportedFormat:
		return ErrUnsupportedFormat
	case KindFileTooLarge:
		return ErrFileTooLarge
	default:
		return ErrCorruptAudio
	}
}

func reject(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
