// Error values for the parts of the controller that live outside the
// dispatch loop: configuration, device setup and script loading.
// Inside the loop every outcome is a status.Code.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Device errors
	ErrDeviceOpen    ErrorCode = "DEVICE_OPEN"
	ErrDeviceIO      ErrorCode = "DEVICE_IO"
	ErrDeviceUnknown ErrorCode = "DEVICE_UNKNOWN"

	// Diagnostic script errors
	ErrScriptNotFound ErrorCode = "SCRIPT_NOT_FOUND"
	ErrScriptLoad     ErrorCode = "SCRIPT_LOAD"

	ErrRuntime ErrorCode = "RUNTIME"
)

// ControllerError is the error type returned by setup code.
type ControllerError struct {
	Code    ErrorCode
	Message string

	// Section and Option locate configuration errors.
	Section string
	Option  string

	// Device names the port or device for device errors.
	Device string

	Err error
}

// Error implements the error interface
func (e *ControllerError) Error() string {
	where := e.Section
	switch {
	case e.Device != "":
		where = e.Device
	case e.Option != "":
		where = e.Section + "." + e.Option
	}
	msg := fmt.Sprintf("[%s", e.Code)
	if where != "" {
		msg += ":" + where
	}
	msg += "] " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ControllerError) Unwrap() error {
	return e.Err
}

// New creates a new ControllerError
func New(code ErrorCode, message string) *ControllerError {
	return &ControllerError{Code: code, Message: message}
}

// Wrap wraps an existing error with a category and message
func Wrap(err error, code ErrorCode, message string) *ControllerError {
	return &ControllerError{Code: code, Message: message, Err: err}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *ControllerError {
	e := New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section))
	e.Section = section
	return e
}

// ConfigOptionError creates an error for missing config option
func ConfigOptionError(section, option string) *ControllerError {
	e := New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section))
	e.Section, e.Option = section, option
	return e
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option, reason string) *ControllerError {
	e := New(ErrConfigValidation, reason)
	e.Section, e.Option = section, option
	return e
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value, targetType string, err error) *ControllerError {
	e := Wrap(err, ErrConfigType, fmt.Sprintf("failed to parse '%s' as %s", value, targetType))
	e.Section, e.Option = section, option
	return e
}

// Device errors

// DeviceOpenError reports a port that could not be opened.
func DeviceOpenError(device string, err error) *ControllerError {
	e := Wrap(err, ErrDeviceOpen, "cannot open device")
	e.Device = device
	return e
}

// DeviceError reports an I/O failure on an open device.
func DeviceError(device, op string, err error) *ControllerError {
	e := Wrap(err, ErrDeviceIO, op+" failed")
	e.Device = device
	return e
}

// UnknownDeviceError reports a device name that is not recognised.
func UnknownDeviceError(device string) *ControllerError {
	e := New(ErrDeviceUnknown, "unknown device")
	e.Device = device
	return e
}

// Script errors

// ScriptNotFoundError reports a diagnostic script name missing from the catalog.
func ScriptNotFoundError(name string) *ControllerError {
	return New(ErrScriptNotFound, fmt.Sprintf("no diagnostic script named '%s'", name))
}

// ScriptLoadError reports a catalog that could not be read or decoded.
func ScriptLoadError(path string, err error) *ControllerError {
	return Wrap(err, ErrScriptLoad, fmt.Sprintf("cannot load scripts from %s", path))
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *ControllerError {
	return New(ErrRuntime, message)
}

// Is reports whether any error in err's chain is a ControllerError with code.
func Is(err error, code ErrorCode) bool {
	var ce *ControllerError
	for err != nil {
		if !stderrors.As(err, &ce) {
			return false
		}
		if ce.Code == code {
			return true
		}
		err = ce.Err
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsDevice checks if error is a device error
func IsDevice(err error) bool {
	return Is(err, ErrDeviceOpen) || Is(err, ErrDeviceIO) || Is(err, ErrDeviceUnknown)
}

// IsScript checks if error is a diagnostic script error
func IsScript(err error) bool {
	return Is(err, ErrScriptNotFound) || Is(err, ErrScriptLoad)
}
