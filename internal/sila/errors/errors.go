// Package errors implements the SiLA 2 runtime error model.
//
// Every failure raised inside a feature implementation is converted at the RPC
// boundary into exactly one SiLAError (validation, defined execution, undefined
// execution or framework error) or BinaryTransferError. Both serialize to the
// protobuf messages declared in SiLAFramework.proto, are base64 encoded, and
// travel as the message of an ABORTED gRPC status.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/silaforge/silac/internal/sila/identifier"
)

// Kind discriminates the SiLAError union
type Kind int

const (
	KindValidation Kind = iota + 1
	KindDefinedExecution
	KindUndefinedExecution
	KindFramework
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDefinedExecution:
		return "defined_execution"
	case KindUndefinedExecution:
		return "undefined_execution"
	case KindFramework:
		return "framework"
	default:
		return "unknown"
	}
}

// FrameworkErrorType enumerates SiLA framework errors
type FrameworkErrorType int32

const (
	CommandExecutionNotAccepted FrameworkErrorType = iota
	InvalidCommandExecutionUUID
	CommandExecutionNotFinished
	InvalidMetadata
	NoMetadataAllowed
)

func (t FrameworkErrorType) String() string {
	switch t {
	case CommandExecutionNotAccepted:
		return "COMMAND_EXECUTION_NOT_ACCEPTED"
	case InvalidCommandExecutionUUID:
		return "INVALID_COMMAND_EXECUTION_UUID"
	case CommandExecutionNotFinished:
		return "COMMAND_EXECUTION_NOT_FINISHED"
	case InvalidMetadata:
		return "INVALID_METADATA"
	case NoMetadataAllowed:
		return "NO_METADATA_ALLOWED"
	default:
		return fmt.Sprintf("FRAMEWORK_ERROR_%d", int32(t))
	}
}

// SiLAError is a structured failure of a SiLA call
type SiLAError struct {
	Kind    Kind
	Message string

	// Parameter is the fully qualified parameter identifier of a validation error
	Parameter string
	// ErrorIdentifier is the fully qualified identifier of a defined execution error
	ErrorIdentifier string
	// FrameworkType is set for framework errors
	FrameworkType FrameworkErrorType

	cause error
}

// NewValidationError reports an invalid parameter value
func NewValidationError(parameter identifier.FullyQualifiedIdentifier, message string) *SiLAError {
	return &SiLAError{Kind: KindValidation, Parameter: parameter.String(), Message: message}
}

// NewDefinedExecutionError reports an error declared in the feature definition
func NewDefinedExecutionError(errorID identifier.FullyQualifiedIdentifier, message string) *SiLAError {
	return &SiLAError{Kind: KindDefinedExecution, ErrorIdentifier: errorID.String(), Message: message}
}

// NewUndefinedExecutionError reports an error not declared in the feature definition
func NewUndefinedExecutionError(message string) *SiLAError {
	return &SiLAError{Kind: KindUndefinedExecution, Message: message}
}

// NewFrameworkError reports a violation of the SiLA framework protocol
func NewFrameworkError(t FrameworkErrorType, message string) *SiLAError {
	return &SiLAError{Kind: KindFramework, FrameworkType: t, Message: message}
}

// Error implements the error interface
func (e *SiLAError) Error() string {
	switch e.Kind {
	case KindValidation:
		return fmt.Sprintf("validation error for %s: %s", e.Parameter, e.Message)
	case KindDefinedExecution:
		return fmt.Sprintf("defined execution error %s: %s", e.ErrorIdentifier, e.Message)
	case KindFramework:
		return fmt.Sprintf("framework error %s: %s", e.FrameworkType, e.Message)
	default:
		return fmt.Sprintf("undefined execution error: %s", e.Message)
	}
}

// Unwrap returns the error the SiLAError was converted from, if any
func (e *SiLAError) Unwrap() error {
	return e.cause
}

// BinaryTransferErrorType enumerates binary transfer failures
type BinaryTransferErrorType int32

const (
	InvalidBinaryTransferUUID BinaryTransferErrorType = iota
	BinaryUploadFailed
	BinaryDownloadFailed
)

func (t BinaryTransferErrorType) String() string {
	switch t {
	case InvalidBinaryTransferUUID:
		return "INVALID_BINARY_TRANSFER_UUID"
	case BinaryUploadFailed:
		return "BINARY_UPLOAD_FAILED"
	case BinaryDownloadFailed:
		return "BINARY_DOWNLOAD_FAILED"
	default:
		return fmt.Sprintf("BINARY_TRANSFER_ERROR_%d", int32(t))
	}
}

// BinaryTransferError is a failure specific to large binary values
type BinaryTransferError struct {
	Type    BinaryTransferErrorType
	Message string
}

// NewBinaryTransferError creates a binary transfer error
func NewBinaryTransferError(t BinaryTransferErrorType, message string) *BinaryTransferError {
	return &BinaryTransferError{Type: t, Message: message}
}

// Error implements the error interface
func (e *BinaryTransferError) Error() string {
	return fmt.Sprintf("binary transfer error %s: %s", e.Type, e.Message)
}

// DefinedErrorSet answers whether an error identifier is declared by a feature
type DefinedErrorSet interface {
	IsDefined(id identifier.FullyQualifiedIdentifier) bool
}

// Map converts any error raised by a feature implementation into a SiLAError or
// BinaryTransferError. Defined execution errors whose identifier is unknown to
// defined become undefined execution errors; errors that are neither SiLA nor
// binary transfer errors become undefined execution errors carrying their text.
func Map(err error, defined DefinedErrorSet) error {
	if err == nil {
		return nil
	}

	var bte *BinaryTransferError
	if stderrors.As(err, &bte) {
		return bte
	}

	var se *SiLAError
	if stderrors.As(err, &se) {
		if se.Kind != KindDefinedExecution {
			return se
		}
		id, parseErr := identifier.ParseKind(identifier.KindDefinedExecutionError, se.ErrorIdentifier)
		if parseErr == nil && defined != nil && defined.IsDefined(id) {
			return se
		}
		return &SiLAError{
			Kind:    KindUndefinedExecution,
			Message: fmt.Sprintf("%s (undeclared error %s)", se.Message, se.ErrorIdentifier),
			cause:   err,
		}
	}

	return &SiLAError{Kind: KindUndefinedExecution, Message: err.Error(), cause: err}
}
