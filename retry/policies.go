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

package retry

import "github.com/hornet-network/cqlcluster/cql"

// NewDefault returns the conservative default policy: it retries at the
// same consistency at most once, and only in the cases where a retry
// cannot produce a duplicate write: a read timeout where enough
// replicas responded but the data replica did not, and a write timeout
// of a batch-log write.
func NewDefault() Policy {
	return defaultPolicy{}
}

type defaultPolicy struct{}

func (defaultPolicy) Unavailable(_ cql.Request, _ cql.Consistency, _, _ int32, _ int) Decision {
	return Reraise()
}

func (defaultPolicy) WriteTimeout(_ cql.Request, level cql.Consistency, writeType string, _, _ int32, retries int) Decision {
	if retries == 0 && writeType == "BATCH_LOG" {
		return RetryAt(level)
	}
	return Reraise()
}

func (defaultPolicy) ReadTimeout(_ cql.Request, level cql.Consistency, blockFor, received int32, dataPresent bool, retries int) Decision {
	if retries == 0 && received >= blockFor && !dataPresent {
		return RetryAt(level)
	}
	return Reraise()
}

// NewNever returns a policy that reraises every error.
func NewNever() Policy {
	return neverPolicy{}
}

type neverPolicy struct{}

func (neverPolicy) Unavailable(cql.Request, cql.Consistency, int32, int32, int) Decision {
	return Reraise()
}

func (neverPolicy) WriteTimeout(cql.Request, cql.Consistency, string, int32, int32, int) Decision {
	return Reraise()
}

func (neverPolicy) ReadTimeout(cql.Request, cql.Consistency, int32, int32, bool, int) Decision {
	return Reraise()
}

// NewDowngradingConsistency returns a policy that retries once at the
// highest consistency the reported replica counts can still satisfy.
// This trades consistency for availability: a QUORUM read that heard
// from only two replicas is retried at TWO rather than failed. Write
// timeouts other than BATCH_LOG and UNLOGGED_BATCH are ignored when the
// write reached at least one replica, and reraised otherwise. Use only
// when reading at lowered consistency is acceptable to the application.
func NewDowngradingConsistency() Policy {
	return downgradingPolicy{}
}

type downgradingPolicy struct{}

func (downgradingPolicy) Unavailable(_ cql.Request, _ cql.Consistency, _, alive int32, retries int) Decision {
	if retries > 0 {
		return Reraise()
	}
	return downgradeTo(alive)
}

func (downgradingPolicy) WriteTimeout(_ cql.Request, level cql.Consistency, writeType string, _, received int32, retries int) Decision {
	if retries > 0 {
		return Reraise()
	}
	switch writeType {
	case "BATCH_LOG":
		return RetryAt(level)
	case "UNLOGGED_BATCH":
		return downgradeTo(received)
	default:
		// the write reached at least one replica; it will eventually be
		// propagated by repair
		if received > 0 {
			return Ignore()
		}
		return Reraise()
	}
}

func (downgradingPolicy) ReadTimeout(_ cql.Request, level cql.Consistency, blockFor, received int32, dataPresent bool, retries int) Decision {
	if retries > 0 {
		return Reraise()
	}
	if received < blockFor {
		return downgradeTo(received)
	}
	if !dataPresent {
		return RetryAt(level)
	}
	return Reraise()
}

func downgradeTo(replicas int32) Decision {
	switch {
	case replicas >= 3:
		return RetryAt(cql.Three)
	case replicas == 2:
		return RetryAt(cql.Two)
	case replicas == 1:
		return RetryAt(cql.One)
	default:
		return Reraise()
	}
}
