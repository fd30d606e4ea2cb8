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

// Package registry defines the topology contract the cluster client
// consumes: a registry of hosts and a listener interface for membership
// and liveness events. Discovery itself (control connection, system
// table scans, gossip events) lives elsewhere; this package only fixes
// the shape of what a discovery implementation must provide, plus a
// [Static] implementation over a fixed host list for tests and for
// deployments with a known contact set.
package registry

import (
	"sync"

	"github.com/hornet-network/cqlcluster/attribute"
)

// Well-known host attributes a registry may attach. Load-balancing
// policies use Datacenter to rate host distance.
//
//nolint:gochecknoglobals
var (
	Datacenter = attribute.NewKey[string]()
	Rack       = attribute.NewKey[string]()
)

// Host is the identity of one cluster node. Host values are comparable
// and used as map keys throughout the client; two hosts are the same
// node iff the registry hands out equal values for them.
type Host interface {
	// ID is a stable identifier for the node (typically the host id the
	// node reports about itself).
	ID() string
	// Address is the "host:port" the node's native transport listens on.
	Address() string
	// Attributes carries registry-provided metadata such as datacenter
	// and rack.
	Attributes() attribute.Values
}

// Listener receives topology events. Found/lost track membership; up/down
// track liveness. Callbacks are invoked sequentially per registry.
type Listener interface {
	HostFound(Host)
	HostLost(Host)
	HostUp(Host)
	HostDown(Host)
}

// Registry is the source of cluster topology.
type Registry interface {
	// Hosts returns a snapshot of the currently known hosts.
	Hosts() []Host
	AddListener(Listener)
	RemoveListener(Listener)
}

// NewHost returns a plain Host with the given id, address and attributes.
// The returned value is comparable by pointer identity, so a registry
// must hand out the same value for the same node.
func NewHost(id, address string, attrs attribute.Values) Host {
	return &host{id: id, address: address, attrs: attrs}
}

type host struct {
	id      string
	address string
	attrs   attribute.Values
}

func (h *host) ID() string                   { return h.id }
func (h *host) Address() string              { return h.address }
func (h *host) Attributes() attribute.Values { return h.attrs }

// Static is a Registry over a fixed set of hosts. It performs no
// discovery; MarkUp and MarkDown exist so tests and embedders can drive
// liveness events by hand.
type Static struct {
	mu        sync.Mutex
	hosts     []Host
	listeners []Listener
}

var _ Registry = (*Static)(nil)

// NewStatic returns a registry over the given hosts.
func NewStatic(hosts ...Host) *Static {
	return &Static{hosts: hosts}
}

func (s *Static) Hosts() []Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]Host, len(s.hosts))
	copy(snapshot, s.hosts)
	return snapshot
}

func (s *Static) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Static) RemoveListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// MarkUp reports h as up to all listeners.
func (s *Static) MarkUp(h Host) {
	for _, l := range s.snapshotListeners() {
		l.HostUp(h)
	}
}

// MarkDown reports h as down to all listeners.
func (s *Static) MarkDown(h Host) {
	for _, l := range s.snapshotListeners() {
		l.HostDown(h)
	}
}

func (s *Static) snapshotListeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]Listener, len(s.listeners))
	copy(snapshot, s.listeners)
	return snapshot
}
