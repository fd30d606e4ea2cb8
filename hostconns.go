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

package cqlcluster

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/internal"
)

// connSet holds the live connections for one host. Reads take a cheap
// snapshot; a request picks one connection uniformly at random.
type connSet struct {
	rnd *internal.LockedRand

	mu sync.RWMutex
	// +checklocks:mu
	conns []conn.Conn
}

func newConnSet() *connSet {
	return &connSet{rnd: internal.NewLockedRand()}
}

func (s *connSet) add(conns []conn.Conn) {
	if len(conns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]conn.Conn, 0, len(s.conns)+len(conns))
	merged = append(merged, s.conns...)
	merged = append(merged, conns...)
	s.conns = merged
}

func (s *connSet) snapshot() []conn.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]conn.Conn, len(s.conns))
	copy(snapshot, s.conns)
	return snapshot
}

// random returns one connection picked uniformly, or errNoConnection if
// the set is empty. Callers treat the miss as a host to skip, not a
// failure.
func (s *connSet) random() (conn.Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.conns) == 0 {
		return nil, errNoConnection
	}
	return s.conns[s.rnd.Intn(len(s.conns))], nil
}

// closeAll closes every connection in the set in parallel and waits for
// all closes to settle. The first close error, if any, is returned.
func (s *connSet) closeAll() error {
	var grp errgroup.Group
	for _, cn := range s.snapshot() {
		grp.Go(cn.Close)
	}
	return grp.Wait()
}
