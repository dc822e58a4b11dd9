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
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// Health check thresholds for the opening stretch of generation.
const (
	healthMaxValid    = 10
	healthMaxInvalid  = 50
	healthMaxOverrun  = 20
	healthMaxDrawTime = time.Second
)

// healthState counts outcomes while generation is being checked. The
// checks end once enough valid examples arrive or any bug is found.
type healthState struct {
	valid    int
	invalid  int
	overrun  int
	drawTime time.Duration
}

// recordForHealthCheck folds res into the health state and fails the run
// when generation looks broken.
func (r *Runner) recordForHealthCheck(ctx context.Context, res *data.Result) {
	if res.Status == data.StatusInteresting {
		r.health = nil
	}
	state := r.health
	if state == nil {
		return
	}

	for _, d := range res.DrawTimes {
		state.drawTime += d
	}
	switch res.Status {
	case data.StatusValid:
		state.valid++
	case data.StatusInvalid:
		state.invalid++
	default:
		state.overrun++
	}

	if state.valid == healthMaxValid {
		r.health = nil
		return
	}
	if state.overrun == healthMaxOverrun {
		r.failHealthCheck(ctx, HealthDataTooLarge, fmt.Sprintf(
			"examples routinely exceeded the max allowable size (%d examples overran while generating %d valid ones)",
			state.overrun, state.valid))
	}
	if state.invalid == healthMaxInvalid {
		r.failHealthCheck(ctx, HealthFilterTooMuch, fmt.Sprintf(
			"the test is filtering out a lot of data (%d filtered examples but only %d good ones)",
			state.invalid, state.valid))
	}
	if state.drawTime > healthMaxDrawTime {
		r.failHealthCheck(ctx, HealthTooSlow, fmt.Sprintf(
			"data generation is extremely slow: only %d valid examples in %s (%d invalid, %d overrun)",
			state.valid, state.drawTime.Round(time.Millisecond), state.invalid, state.overrun))
	}
}

// failHealthCheck aborts the run unless check is suppressed.
func (r *Runner) failHealthCheck(ctx context.Context, check HealthCheck, message string) {
	if r.config.Suppressed(check) {
		return
	}
	err := &HealthCheckError{Check: check, Message: message}
	r.metrics.healthCheck(check)
	r.tracer.TraceHealthCheck(ctx, err)
	r.exit("", err)
}
