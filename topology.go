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
	"golang.org/x/sync/errgroup"

	"github.com/hornet-network/cqlcluster/registry"
)

// The client listens for topology events itself; it registers with the
// registry on Connect and deregisters on Close.
var _ registry.Listener = (*Client)(nil)

// HostFound implements [registry.Listener]. Membership is the
// registry's concern; nothing to do at this layer.
func (c *Client) HostFound(registry.Host) {}

// HostLost implements [registry.Listener].
func (c *Client) HostLost(registry.Host) {}

// HostUp implements [registry.Listener]: the host is connected in the
// background unless an attempt is already in flight.
func (c *Client) HostUp(host registry.Host) {
	c.mu.Lock()
	if c.state != stateConnecting && c.state != stateConnected {
		c.mu.Unlock()
		return
	}
	if _, inFlight := c.connecting[host]; inFlight {
		c.mu.Unlock()
		return
	}
	c.connecting[host] = struct{}{}
	c.mu.Unlock()

	go func() {
		if err := c.connectHost(c.rootCtx, host); err != nil {
			c.logger.WithField("host", host.Address()).WithError(err).Warn("failed to connect host")
		}
	}()
}

// HostDown implements [registry.Listener].
func (c *Client) HostDown(host registry.Host) {
	_ = c.hostDown(host)
}

// hostDown takes host out of rotation: its prepared ids and connection
// set are dropped and all its connections closed. It returns once the
// closes have settled. A host that was merely being connected is simply
// withdrawn.
func (c *Client) hostDown(host registry.Host) error {
	c.mu.Lock()
	set := c.conns[host]
	if set == nil {
		delete(c.connecting, host)
		c.mu.Unlock()
		return nil
	}
	delete(c.connecting, host)
	delete(c.conns, host)
	delete(c.prepared, host)
	conns := set.snapshot()
	for _, cn := range conns {
		delete(c.switches, cn)
	}
	c.mu.Unlock()

	if sink := c.hostSink(); sink != nil {
		sink.HostDown(host)
	}
	c.logger.WithField("host", host.Address()).Debug("host down")

	var grp errgroup.Group
	for _, cn := range conns {
		grp.Go(cn.Close)
	}
	return grp.Wait()
}
