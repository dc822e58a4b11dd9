// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrFlaky means the test function gave different results for the same
	// bytes.
	ErrFlaky = errors.New("engine: flaky test function")

	// ErrHealthCheck is wrapped by every *HealthCheckError.
	ErrHealthCheck = errors.New("engine: health check failed")

	// ErrNilTestFunction is returned by NewRunner when fn is nil.
	ErrNilTestFunction = errors.New("engine: test function must not be nil")

	// ErrInvalidConfig is wrapped by RunnerConfig.Validate errors.
	ErrInvalidConfig = errors.New("engine: invalid config")
)

// HealthCheck names one of the heuristic checks a run can fail.
type HealthCheck string

const (
	// HealthDataTooLarge fails when generation keeps overrunning the
	// buffer before enough valid examples are found.
	HealthDataTooLarge HealthCheck = "data_too_large"

	// HealthFilterTooMuch fails when most generated examples are invalid.
	HealthFilterTooMuch HealthCheck = "filter_too_much"

	// HealthTooSlow fails when drawing the first valid examples takes too
	// long.
	HealthTooSlow HealthCheck = "too_slow"

	// HealthLargeBaseExample fails when the all-zero example is already
	// huge or does not fit.
	HealthLargeBaseExample HealthCheck = "large_base_example"

	// HealthHungTest fails when the whole run exceeds the hung test limit.
	HealthHungTest HealthCheck = "hung_test"
)

// AllHealthChecks lists every health check in a stable order.
func AllHealthChecks() []HealthCheck {
	return []HealthCheck{
		HealthDataTooLarge,
		HealthFilterTooMuch,
		HealthTooSlow,
		HealthLargeBaseExample,
		HealthHungTest,
	}
}

// HealthCheckError reports which check aborted a run.
type HealthCheckError struct {
	Check   HealthCheck
	Message string
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check %s failed: %s", e.Check, e.Message)
}

// Unwrap lets errors.Is match ErrHealthCheck.
func (e *HealthCheckError) Unwrap() error { return ErrHealthCheck }
