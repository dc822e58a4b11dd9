// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
)

// Status classifies a concluded run. Statuses are ordered: a larger status
// is always more informative than a smaller one.
type Status int

const (
	// StatusOverrun means the run wanted more bytes than it was allowed.
	StatusOverrun Status = iota

	// StatusInvalid means the run rejected its own data.
	StatusInvalid

	// StatusValid means the run completed and the property held.
	StatusValid

	// StatusInteresting means the run failed.
	StatusInteresting
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusOverrun:
		return "overrun"
	case StatusInvalid:
		return "invalid"
	case StatusValid:
		return "valid"
	case StatusInteresting:
		return "interesting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Origin distinguishes genuinely different failures. Two interesting runs
// with the same origin are assumed to be the same bug.
type Origin string

// digitRuns matches the numbers formatted into an error message.
var digitRuns = regexp.MustCompile(`[0-9]+`)

// OriginFromError derives an origin from an error returned by the test
// function defined at site.
//
// Description:
//
//	The origin is the innermost wrapped error's type plus where the
//	failure was raised. A returned error has no raise site of its own, so
//	the location is taken from the first error in the chain with a
//	Location method (see Failf). Otherwise it is site, qualified by the
//	innermost message with every digit run collapsed: distinct sentinels
//	stay apart while values formatted into one message do not split the
//	bug.
func OriginFromError(err error, site string) Origin {
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	var located interface{ Location() string }
	if errors.As(err, &located) {
		return Origin(fmt.Sprintf("%T at %s", root, located.Location()))
	}
	return Origin(fmt.Sprintf("%T at %s: %s", root, site, digitRuns.ReplaceAllString(root.Error(), "#")))
}

// Failure is a test failure that remembers the file and line that raised
// it. Every Failf call site is its own bug.
type Failure struct {
	err  error
	site string
}

// Failf formats a failure like fmt.Errorf, %w included, and records the
// caller as its raise site.
func Failf(format string, args ...any) error {
	site := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		site = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &Failure{err: fmt.Errorf(format, args...), site: site}
}

func (f *Failure) Error() string { return f.err.Error() }

func (f *Failure) Unwrap() error { return f.err }

// Location returns the raise site as file:line.
func (f *Failure) Location() string { return f.site }
