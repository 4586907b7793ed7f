//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package builderr holds the error types shared by the package building
// pipeline. Every failure surfaced by the lib/ packages is one of these, so
// callers can classify it with errors.As.
package builderr

import "fmt"

// IOError is returned when reading, writing, opening or stat-ing fails.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e IOError) Unwrap() error { return e.Err }

// CryptoError is returned when a key can't be used or a digest or signature
// operation fails.
type CryptoError struct {
	Op  string
	Err error
}

func (e CryptoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e CryptoError) Unwrap() error { return e.Err }

// ValidationError is returned when a request violates a format constraint
// before anything is encoded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FormatError is returned when an unknown or unsupported package format is
// requested.
type FormatError struct {
	Format string
}

func (e FormatError) Error() string {
	if e.Format == "" {
		return "unknown update format"
	}
	return fmt.Sprintf("unsupported update format %q", e.Format)
}

// Wrap returns an IOError for a failed operation, or nil if err is nil.
func Wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return IOError{Op: op, Path: path, Err: err}
}
