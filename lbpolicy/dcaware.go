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

	"github.com/hornet-network/cqlcluster/attribute"
	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
)

// NewDCAware returns a policy that prefers hosts in the given local
// datacenter. Local hosts are rated [DistanceLocal] and tried first, in
// round-robin order; hosts in other datacenters are rated
// [DistanceRemote] and tried after, up to maxRemote per plan (0 means
// no remote fallback). Hosts whose registry entry carries no datacenter
// attribute are treated as remote.
func NewDCAware(localDC string, maxRemote int) *DCAware {
	return &DCAware{localDC: localDC, maxRemote: maxRemote}
}

// DCAware is a datacenter-aware round-robin policy. It implements
// [Policy] and [HostSink].
type DCAware struct {
	localDC   string
	maxRemote int
	counter   atomic.Uint64

	mu     sync.RWMutex
	local  []registry.Host
	remote []registry.Host
}

var (
	_ Policy   = (*DCAware)(nil)
	_ HostSink = (*DCAware)(nil)
)

func (d *DCAware) isLocal(host registry.Host) bool {
	dc, ok := attribute.GetValue(host.Attributes(), registry.Datacenter)
	return ok && dc == d.localDC
}

func (d *DCAware) Distance(host registry.Host) Distance {
	if d.isLocal(host) {
		return DistanceLocal
	}
	if d.maxRemote > 0 {
		return DistanceRemote
	}
	return DistanceIgnore
}

func (d *DCAware) Plan(string, cql.Request) Plan {
	d.mu.RLock()
	local, remote := d.local, d.remote
	d.mu.RUnlock()

	hosts := make([]registry.Host, 0, len(local)+len(remote))
	if len(local) > 0 {
		offset := int(d.counter.Add(1)-1) % len(local)
		hosts = append(hosts, local[offset:]...)
		hosts = append(hosts, local[:offset]...)
	}
	n := len(remote)
	if n > d.maxRemote {
		n = d.maxRemote
	}
	hosts = append(hosts, remote[:n]...)
	return &slicePlan{hosts: hosts}
}

func (d *DCAware) HostUp(host registry.Host) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := &d.remote
	if d.isLocal(host) {
		set = &d.local
	}
	for _, existing := range *set {
		if existing == host {
			return
		}
	}
	hosts := make([]registry.Host, len(*set), len(*set)+1)
	copy(hosts, *set)
	*set = append(hosts, host)
}

func (d *DCAware) HostDown(host registry.Host) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, set := range []*[]registry.Host{&d.local, &d.remote} {
		for i, existing := range *set {
			if existing == host {
				hosts := make([]registry.Host, 0, len(*set)-1)
				hosts = append(hosts, (*set)[:i]...)
				hosts = append(hosts, (*set)[i+1:]...)
				*set = hosts
				return
			}
		}
	}
}
