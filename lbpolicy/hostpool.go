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

	"github.com/hailocab/go-hostpool"

	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
)

// NewHostPool returns a policy that delegates host selection to the
// given hailocab/go-hostpool pool, e.g. an epsilon-greedy pool that
// steers traffic toward nodes with the best observed response times:
//
//	lbpolicy.NewHostPool(hostpool.NewEpsilonGreedy(nil, 0, &hostpool.LinearEpsilonValueCalculator{}))
//
// The policy keeps the pool's host list in sync with the live host set.
// Each plan yields the pool's single pick, falling back to the rest of
// the live set so a dead pick does not strand the request.
func NewHostPool(pool hostpool.HostPool) *HostPool {
	return &HostPool{pool: pool, byAddr: map[string]registry.Host{}}
}

// HostPool adapts a hostpool.HostPool to the [Policy] contract. It
// implements [Policy] and [HostSink].
type HostPool struct {
	mu     sync.RWMutex
	pool   hostpool.HostPool
	byAddr map[string]registry.Host
}

var (
	_ Policy   = (*HostPool)(nil)
	_ HostSink = (*HostPool)(nil)
)

func (h *HostPool) Distance(registry.Host) Distance {
	return DistanceLocal
}

func (h *HostPool) Plan(string, cql.Request) Plan {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.byAddr) == 0 {
		return &slicePlan{}
	}
	picked := h.byAddr[h.pool.Get().Host()]
	hosts := make([]registry.Host, 0, len(h.byAddr))
	if picked != nil {
		hosts = append(hosts, picked)
	}
	for _, host := range h.byAddr {
		if host != picked {
			hosts = append(hosts, host)
		}
	}
	return &slicePlan{hosts: hosts}
}

func (h *HostPool) HostUp(host registry.Host) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byAddr[host.Address()] = host
	h.pool.SetHosts(h.addrsLocked())
}

func (h *HostPool) HostDown(host registry.Host) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byAddr, host.Address())
	if len(h.byAddr) > 0 {
		// the pool rejects an empty host list; Plan already short-circuits
		// when no hosts remain
		h.pool.SetHosts(h.addrsLocked())
	}
}

// +checklocks:h.mu
func (h *HostPool) addrsLocked() []string {
	addrs := make([]string, 0, len(h.byAddr))
	for addr := range h.byAddr {
		addrs = append(addrs, addr)
	}
	return addrs
}
