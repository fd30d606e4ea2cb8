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

package lbpolicy

import (
	"sync"
	"sync/atomic"

	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
)

// NewRoundRobin returns a policy that rates every host local and plans
// over all live hosts starting at a rotating offset, so load spreads
// evenly across the cluster.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// RoundRobin cycles through the live host set. It implements [Policy]
// and [HostSink].
type RoundRobin struct {
	counter atomic.Uint64

	mu    sync.RWMutex
	hosts []registry.Host
}

var (
	_ Policy   = (*RoundRobin)(nil)
	_ HostSink = (*RoundRobin)(nil)
)

func (r *RoundRobin) Distance(registry.Host) Distance {
	return DistanceLocal
}

func (r *RoundRobin) Plan(string, cql.Request) Plan {
	r.mu.RLock()
	hosts := r.hosts
	r.mu.RUnlock()
	if len(hosts) == 0 {
		return &slicePlan{}
	}
	offset := int(r.counter.Add(1)-1) % len(hosts)
	rotated := make([]registry.Host, 0, len(hosts))
	rotated = append(rotated, hosts[offset:]...)
	rotated = append(rotated, hosts[:offset]...)
	return &slicePlan{hosts: rotated}
}

func (r *RoundRobin) HostUp(host registry.Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.hosts {
		if existing == host {
			return
		}
	}
	// append-to-copy so plans iterating the old slice are unaffected
	hosts := make([]registry.Host, len(r.hosts), len(r.hosts)+1)
	copy(hosts, r.hosts)
	r.hosts = append(hosts, host)
}

func (r *RoundRobin) HostDown(host registry.Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.hosts {
		if existing == host {
			hosts := make([]registry.Host, 0, len(r.hosts)-1)
			hosts = append(hosts, r.hosts[:i]...)
			hosts = append(hosts, r.hosts[i+1:]...)
			r.hosts = hosts
			return
		}
	}
}
