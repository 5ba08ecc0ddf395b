/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	"errors"
)

// StatusError is an error that carries a StatusCode and an optional
// machine-readable code such as "ErrConflict".
type StatusError interface {
	error
	Status() StatusCode
	Code() string
	WithCode(code string) StatusError
}

type errorWithStatus struct {
	err    error
	status StatusCode
	code   string
}

func (e errorWithStatus) Error() string {
	return e.err.Error()
}

func (e errorWithStatus) Status() StatusCode {
	return e.status
}

func (e errorWithStatus) Code() string {
	return e.code
}

func (e errorWithStatus) Unwrap() error {
	return e.err
}

// WithCode returns a copy of the error tagged with the given code. Sentinel
// errors are declared this way and compared with errors.Is.
func (e errorWithStatus) WithCode(code string) StatusError {
	return errorWithStatus{err: e.err, status: e.status, code: code}
}

func newStatusError(message string, status StatusCode) StatusError {
	return errorWithStatus{err: errors.New(message), status: status}
}

// NotFound creates a new "not found" error.
func NotFound(message string) StatusError {
	return newStatusError(message, ErrCodeNotFound)
}

// InvalidArgument creates a new "invalid argument" error.
func InvalidArgument(message string) StatusError {
	return newStatusError(message, ErrCodeInvalidArgument)
}

// AlreadyExists creates a new "already exists" error.
func AlreadyExists(message string) StatusError {
	return newStatusError(message, ErrCodeAlreadyExists)
}

// FailedPrecond creates a new "failed precondition" error.
func FailedPrecond(message string) StatusError {
	return newStatusError(message, ErrCodeFailedPrecondition)
}

// Internal creates a new "internal" error.
func Internal(message string) StatusError {
	return newStatusError(message, ErrCodeInternal)
}

// Unavailable creates a new "unavailable" error.
func Unavailable(message string) StatusError {
	return newStatusError(message, ErrCodeUnavailable)
}

// StatusOf returns the status of the first StatusError in the chain of err,
// or 0 if there is none.
func StatusOf(err error) StatusCode {
	if err == nil {
		return 0
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status()
	}

	return 0
}

// CodeOf returns the code of the first StatusError in the chain of err.
func CodeOf(err error) string {
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code()
	}
	return ""
}

// IsStatus checks if the given error has the given status.
func IsStatus(err error, status StatusCode) bool {
	return StatusOf(err) == status
}

// IsClientError checks if the error is caused by the caller.
func IsClientError(err error) bool {
	return StatusOf(err).IsClientError()
}

// IsServerError checks if the error is caused by the store or environment.
func IsServerError(err error) bool {
	return StatusOf(err).IsServerError()
}

// Is is a shortcut of the standard errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a shortcut of the standard errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a shortcut of the standard errors.New, for errors without status.
func New(message string) error {
	return errors.New(message)
}
