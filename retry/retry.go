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

// Package retry implements retry policies for recoverable server
// errors. When the coordinator reports an unavailable, read-timeout or
// write-timeout condition, the dispatcher asks the configured policy for
// a decision: retry the request (possibly at a different consistency) on
// the same connection, ignore the error and report an empty result, or
// reraise it to the caller.
package retry

import "github.com/hornet-network/cqlcluster/cql"

// Decision is a retry policy's verdict for one error.
type Decision struct {
	kind        decisionKind
	consistency cql.Consistency
}

type decisionKind int

const (
	kindReraise decisionKind = iota
	kindIgnore
	kindRetry
)

// RetryAt decides to retry the request at the given consistency.
func RetryAt(level cql.Consistency) Decision {
	return Decision{kind: kindRetry, consistency: level}
}

// Ignore decides to swallow the error and report an empty result.
func Ignore() Decision {
	return Decision{kind: kindIgnore}
}

// Reraise decides to surface the error to the caller.
func Reraise() Decision {
	return Decision{kind: kindReraise}
}

// Retry returns the consistency to retry at, and whether the decision
// is a retry at all.
func (d Decision) Retry() (cql.Consistency, bool) {
	return d.consistency, d.kind == kindRetry
}

// Ignored reports whether the decision is to ignore the error.
func (d Decision) Ignored() bool {
	return d.kind == kindIgnore
}

// Policy decides what to do with recoverable server errors. Each method
// receives the request being dispatched, the fields of the error
// response, and how many times the request has already been retried.
type Policy interface {
	// Unavailable handles an unavailable error: required replicas were
	// needed, only alive were up.
	Unavailable(req cql.Request, level cql.Consistency, required, alive int32, retries int) Decision
	// WriteTimeout handles a write timeout: received of blockFor
	// acknowledgements arrived for a write of the given type.
	WriteTimeout(req cql.Request, level cql.Consistency, writeType string, blockFor, received int32, retries int) Decision
	// ReadTimeout handles a read timeout: received of blockFor responses
	// arrived, dataPresent is whether the data replica responded.
	ReadTimeout(req cql.Request, level cql.Consistency, blockFor, received int32, dataPresent bool, retries int) Decision
}
