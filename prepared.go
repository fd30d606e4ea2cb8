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
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/cql"
)

// hostPrepared is the per-host prepared-statement registry: a cache of
// statement → prepared id, plus de-duplication of in-flight prepares.
// Ids are host-local; each host gets its own registry, created with the
// host's connection set and torn down with it.
type hostPrepared struct {
	// flight de-duplicates concurrent prepares of the same statement: a
	// burst of identical executes sends exactly one PREPARE frame, and
	// every caller observes the same shared in-flight result.
	flight singleflight.Group

	mu sync.RWMutex
	// +checklocks:mu
	ids map[string][]byte
}

func newHostPrepared() *hostPrepared {
	return &hostPrepared{ids: map[string][]byte{}}
}

func (p *hostPrepared) lookup(statement string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.ids[statement]
	return id, ok
}

func (p *hostPrepared) store(statement string, id []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[statement] = id
}

// prepare returns the id for statement on this host, sending a PREPARE
// on the given connection if none is cached. On a server error the
// registry is left unpopulated so a later attempt prepares again.
func (p *hostPrepared) prepare(ctx context.Context, cn conn.Conn, statement string) ([]byte, error) {
	if id, ok := p.lookup(statement); ok {
		return id, nil
	}
	result, err, _ := p.flight.Do(statement, func() (any, error) {
		// re-check under the flight: a racing caller may have finished
		if id, ok := p.lookup(statement); ok {
			return id, nil
		}
		resp, err := cn.SendRequest(ctx, &cql.Prepare{Statement: statement})
		if err != nil {
			return nil, err
		}
		if r, ok := resp.(*cql.PreparedResult); ok {
			p.store(statement, r.ID)
			return r.ID, nil
		}
		if cql.AsError(resp) != nil {
			return nil, newQueryError(resp, statement)
		}
		return nil, errors.Errorf("unexpected response %T to PREPARE", resp)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
