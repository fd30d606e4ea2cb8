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

	"github.com/pkg/errors"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/cql"
)

// pendingSwitch is the shared-completion handle of one in-flight USE on
// one connection. err is written before done is closed, so it may only
// be read after receiving from done.
type pendingSwitch struct {
	keyspace string
	done     chan struct{}
	err      error
}

// switchKeyspace ensures cn is USE'd into the target keyspace. Switches
// on one connection are serialized by the pending entry: concurrent
// callers targeting the same keyspace coalesce onto one USE frame, and
// exactly one is in flight per connection and keyspace.
func (c *Client) switchKeyspace(ctx context.Context, cn conn.Conn, target string) error {
	c.mu.Lock()
	if cn.Keyspace() == target {
		c.mu.Unlock()
		return nil
	}
	if pending := c.switches[cn]; pending != nil && pending.keyspace == target {
		c.mu.Unlock()
		select {
		case <-pending.done:
			return pending.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	pending := &pendingSwitch{keyspace: target, done: make(chan struct{})}
	c.switches[cn] = pending
	c.mu.Unlock()

	resp, err := cn.SendRequest(ctx, &cql.Query{
		Statement:   "USE " + target,
		Consistency: cql.One,
	})
	var observed string
	if err == nil {
		switch r := resp.(type) {
		case *cql.SetKeyspaceResult:
			observed = r.Keyspace
		default:
			if cql.AsError(resp) != nil {
				err = newQueryError(resp, "USE "+target)
			} else {
				err = errors.Errorf("unexpected response %T to USE", resp)
			}
		}
	}

	c.mu.Lock()
	if c.switches[cn] == pending {
		delete(c.switches, cn)
	}
	c.mu.Unlock()

	if observed != "" {
		c.keyspace.Store(observed)
	}
	pending.err = err
	close(pending.done)
	return err
}
