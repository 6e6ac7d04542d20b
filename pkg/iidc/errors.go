package iidc

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an IIDC error condition.
type ErrorCode int

// Error codes, in the order of the classic dc1394 error table.
const (
	CodeFailure ErrorCode = iota + 1
	CodeNoFrame
	CodeNoCamera
	CodeNotACamera
	CodeFunctionNotSupported
	CodeCameraNotInitialized
	CodeInvalidFeature
	CodeInvalidVideoFormat
	CodeInvalidVideoMode
	CodeInvalidFramerate
	CodeInvalidTriggerMode
	CodeInvalidTriggerSource
	CodeInvalidIsoSpeed
	CodeInvalidIIDCVersion
	CodeInvalidColorCoding
	CodeInvalidColorFilter
	CodeInvalidCaptureMode
	CodeValueOutOfRange
	CodeInvalidErrorCode
	CodeMemoryAllocationFailure
	CodeTaggedRegisterNotFound
	CodeFormat7ErrorFlag1
	CodeFormat7ErrorFlag2
	CodeInvalidBayerMethod
	CodeInvalidArgument
	CodeIsoChannelAllocation
	CodeBandwidthAllocation
	CodeTransactionFailure
	CodeCaptureNotSet
	CodeCaptureRunning
)

var errorStrings = map[ErrorCode]string{
	CodeFailure:                 "generic failure",
	CodeNoFrame:                 "no frame",
	CodeNoCamera:                "no camera",
	CodeNotACamera:              "this node is not a camera",
	CodeFunctionNotSupported:    "function not supported by this camera",
	CodeCameraNotInitialized:    "camera not initialized",
	CodeInvalidFeature:          "invalid feature",
	CodeInvalidVideoFormat:      "invalid video format",
	CodeInvalidVideoMode:        "invalid video mode",
	CodeInvalidFramerate:        "invalid framerate",
	CodeInvalidTriggerMode:      "invalid trigger mode",
	CodeInvalidTriggerSource:    "invalid trigger source",
	CodeInvalidIsoSpeed:         "invalid ISO speed",
	CodeInvalidIIDCVersion:      "invalid IIDC version",
	CodeInvalidColorCoding:      "invalid Format_7 color coding",
	CodeInvalidColorFilter:      "invalid Format_7 elementary Bayer tile",
	CodeInvalidCaptureMode:      "invalid capture mode",
	CodeValueOutOfRange:         "requested value is out of range",
	CodeInvalidErrorCode:        "invalid error code",
	CodeMemoryAllocationFailure: "memory allocation failure",
	CodeTaggedRegisterNotFound:  "tagged register not found",
	CodeFormat7ErrorFlag1:       "Format_7 Error_flag_1 is set",
	CodeFormat7ErrorFlag2:       "Format_7 Error_flag_2 is set",
	CodeInvalidBayerMethod:      "invalid Bayer method",
	CodeInvalidArgument:         "invalid argument value",
	CodeIsoChannelAllocation:    "could not allocate an ISO channel",
	CodeBandwidthAllocation:     "could not allocate bandwidth",
	CodeTransactionFailure:      "register transaction failure",
	CodeCaptureNotSet:           "capture is not set",
	CodeCaptureRunning:          "capture is running",
}

// String returns the human readable description of the code.
func (c ErrorCode) String() string {
	if s, ok := errorStrings[c]; ok {
		return s
	}
	return errorStrings[CodeInvalidErrorCode]
}

// ErrorKind groups error codes by who is expected to act on them.
type ErrorKind int

// Error kinds.
const (
	// KindCaller is a misuse by the caller: bad enum, value out of range,
	// a speed the current operation mode cannot carry.
	KindCaller ErrorKind = iota + 1
	// KindProtocol is a camera-side protocol condition such as a missing
	// tagged register or a Format7 error flag.
	KindProtocol
	// KindTransport is a bus or resource failure.
	KindTransport
	// KindInfo is not a failure: no frame yet under polling.
	KindInfo
)

func (k ErrorKind) String() string {
	switch k {
	case KindCaller:
		return "caller"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Kind classifies the code.
func (c ErrorCode) Kind() ErrorKind {
	switch c {
	case CodeNoFrame:
		return KindInfo
	case CodeTaggedRegisterNotFound, CodeFormat7ErrorFlag1, CodeFormat7ErrorFlag2,
		CodeInvalidBayerMethod, CodeInvalidColorFilter, CodeNotACamera, CodeInvalidIIDCVersion:
		return KindProtocol
	case CodeFailure, CodeNoCamera, CodeCameraNotInitialized, CodeMemoryAllocationFailure,
		CodeIsoChannelAllocation, CodeBandwidthAllocation, CodeTransactionFailure,
		CodeCaptureNotSet, CodeCaptureRunning:
		return KindTransport
	default:
		return KindCaller
	}
}

// Error is returned by every operation in this package.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code, so the
// sentinels below match any error carrying their code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Kind classifies the error.
func (e *Error) Kind() ErrorKind {
	return e.Code.Kind()
}

// Sentinels for errors.Is.
var (
	ErrFailure                = &Error{Code: CodeFailure}
	ErrNoFrame                = &Error{Code: CodeNoFrame}
	ErrNotACamera             = &Error{Code: CodeNotACamera}
	ErrFunctionNotSupported   = &Error{Code: CodeFunctionNotSupported}
	ErrCameraNotInitialized   = &Error{Code: CodeCameraNotInitialized}
	ErrInvalidFeature         = &Error{Code: CodeInvalidFeature}
	ErrInvalidVideoFormat     = &Error{Code: CodeInvalidVideoFormat}
	ErrInvalidVideoMode       = &Error{Code: CodeInvalidVideoMode}
	ErrInvalidFramerate       = &Error{Code: CodeInvalidFramerate}
	ErrInvalidTriggerMode     = &Error{Code: CodeInvalidTriggerMode}
	ErrInvalidIsoSpeed        = &Error{Code: CodeInvalidIsoSpeed}
	ErrInvalidIIDCVersion     = &Error{Code: CodeInvalidIIDCVersion}
	ErrInvalidColorCoding     = &Error{Code: CodeInvalidColorCoding}
	ErrInvalidColorFilter     = &Error{Code: CodeInvalidColorFilter}
	ErrInvalidCaptureMode     = &Error{Code: CodeInvalidCaptureMode}
	ErrValueOutOfRange        = &Error{Code: CodeValueOutOfRange}
	ErrMemoryAllocation       = &Error{Code: CodeMemoryAllocationFailure}
	ErrTaggedRegisterNotFound = &Error{Code: CodeTaggedRegisterNotFound}
	ErrFormat7ErrorFlag1      = &Error{Code: CodeFormat7ErrorFlag1}
	ErrFormat7ErrorFlag2      = &Error{Code: CodeFormat7ErrorFlag2}
	ErrInvalidBayerMethod     = &Error{Code: CodeInvalidBayerMethod}
	ErrInvalidArgument        = &Error{Code: CodeInvalidArgument}
	ErrIsoChannelAllocation   = &Error{Code: CodeIsoChannelAllocation}
	ErrBandwidthAllocation    = &Error{Code: CodeBandwidthAllocation}
	ErrTransactionFailure     = &Error{Code: CodeTransactionFailure}
	ErrCaptureNotSet          = &Error{Code: CodeCaptureNotSet}
	ErrCaptureRunning         = &Error{Code: CodeCaptureRunning}
)

func newError(op string, code ErrorCode, cause error) *Error {
	return &Error{Code: code, Op: op, Cause: cause}
}

func errorf(op string, code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of an error produced by this package, or 0 if err
// does not carry an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return 0
}

// CodeOf returns the code carried by err, or 0.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
