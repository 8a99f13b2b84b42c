package pipeline

import (
	"errors"
	"fmt"
)

const (
	CodeFileNotFound    = "FILE_NOT_FOUND"
	CodeDecodeFailed    = "DECODE_FAILED"
	CodeInvalidImage    = "INVALID_IMAGE"
	CodeModelLoadFailed = "MODEL_LOAD_FAILED"
	CodeInferenceFailed = "INFERENCE_FAILED"
	CodeEncodeFailed    = "ENCODE_FAILED"
	CodeUnknown         = "UNKNOWN_ERROR"
)

var errNoLoader = errors.New("no model loader configured")

// InputError reports an input that could not be read or decoded.
type InputError struct {
	Path string
	Code string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid input: %v", e.Err)
	}
	return fmt.Sprintf("invalid input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func (e *InputError) ErrorCode() string {
	if e.Code == "" {
		return CodeInvalidImage
	}
	return e.Code
}

// LoadError reports that the model weights could not be fetched or loaded.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string     { return fmt.Sprintf("failed to load model: %v", e.Err) }
func (e *LoadError) Unwrap() error     { return e.Err }
func (e *LoadError) ErrorCode() string { return CodeModelLoadFailed }

type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string     { return fmt.Sprintf("inference failed: %v", e.Err) }
func (e *InferenceError) Unwrap() error     { return e.Err }
func (e *InferenceError) ErrorCode() string { return CodeInferenceFailed }

// SizeError reports a model built for a fixed input resolution that differs
// from the requested processing size.
type SizeError struct {
	Want int64
	Got  int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("model expects processing size %d, got %d", e.Want, e.Got)
}

type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to encode output: %v", e.Err)
	}
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error     { return e.Err }
func (e *EncodeError) ErrorCode() string { return CodeEncodeFailed }

// ErrorCode returns the machine-readable code carried by err, or CodeUnknown.
func ErrorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeUnknown
}
