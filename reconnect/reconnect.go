// Copyright 2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reconnect implements reconnection scheduling. When a host
// cannot be connected, the client walks a schedule of delays produced by
// the configured policy, retrying after each one until the schedule ends
// or the host comes up.
package reconnect

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Policy produces reconnection schedules. A fresh schedule is created
// per reconnection episode, so schedules may carry per-episode state.
type Policy interface {
	NewSchedule() Schedule
}

// Schedule yields the delays between consecutive connection attempts.
// Next returns false when the schedule is exhausted and the host should
// be given up on for this episode.
type Schedule interface {
	Next() (time.Duration, bool)
}

// NewExponential returns a policy whose schedules start at the given
// interval and grow by the backoff library's default factor of 1.5 up
// to maxInterval, jittered, giving up after maxElapsed
// (0 means never give up).
func NewExponential(initial, maxInterval, maxElapsed time.Duration) Policy {
	return &exponentialPolicy{initial: initial, maxInterval: maxInterval, maxElapsed: maxElapsed}
}

type exponentialPolicy struct {
	initial     time.Duration
	maxInterval time.Duration
	maxElapsed  time.Duration
}

func (p *exponentialPolicy) NewSchedule() Schedule {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.maxInterval
	b.MaxElapsedTime = p.maxElapsed
	b.Reset()
	return backoffSchedule{b}
}

// backoffSchedule adapts a backoff.BackOff, mapping backoff.Stop to
// schedule end.
type backoffSchedule struct {
	backoff backoff.BackOff
}

func (s backoffSchedule) Next() (time.Duration, bool) {
	d := s.backoff.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// NewConstant returns a policy whose schedules yield the same interval
// maxRetries times. A negative maxRetries retries forever.
func NewConstant(interval time.Duration, maxRetries int) Policy {
	return &constantPolicy{interval: interval, maxRetries: maxRetries}
}

type constantPolicy struct {
	interval   time.Duration
	maxRetries int
}

func (p *constantPolicy) NewSchedule() Schedule {
	return &constantSchedule{interval: p.interval, remaining: p.maxRetries}
}

type constantSchedule struct {
	interval  time.Duration
	remaining int
}

func (s *constantSchedule) Next() (time.Duration, bool) {
	if s.remaining == 0 {
		return 0, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.interval, true
}
