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

// Package lbpolicy implements host selection. A load-balancing policy
// rates each host's distance, which drives how many connections are
// opened to it, and produces a query plan: the ordered, single-pass
// sequence of hosts to try for one request. Policies in this package
// are fed topology by the client through the [HostSink] interface.
package lbpolicy

import (
	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
)

// Distance is how a policy rates a host. It drives connection counts:
// local hosts get the full pool, remote hosts a reduced one, ignored
// hosts none.
type Distance int

const (
	DistanceLocal Distance = iota
	DistanceRemote
	DistanceIgnore
)

func (d Distance) String() string {
	switch d {
	case DistanceLocal:
		return "local"
	case DistanceRemote:
		return "remote"
	case DistanceIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Policy decides which hosts serve which requests.
type Policy interface {
	// Distance rates the given host.
	Distance(host registry.Host) Distance
	// Plan returns the hosts to try for one request, in preference
	// order. The keyspace is the request's effective target keyspace
	// ("" if none); req is the request about to be dispatched. Both may
	// inform placement-aware policies and may be ignored.
	Plan(keyspace string, req cql.Request) Plan
}

// Plan is a single-pass iterator over candidate hosts. Next returns
// false when there are no more hosts to try.
type Plan interface {
	Next() (registry.Host, bool)
}

// HostSink is implemented by policies that track the live host set. The
// client feeds it as hosts come up and go down.
type HostSink interface {
	HostUp(registry.Host)
	HostDown(registry.Host)
}

// slicePlan iterates a fixed host slice.
type slicePlan struct {
	hosts []registry.Host
	next  int
}

func (p *slicePlan) Next() (registry.Host, bool) {
	if p.next >= len(p.hosts) {
		return nil, false
	}
	host := p.hosts[p.next]
	p.next++
	return host, true
}
