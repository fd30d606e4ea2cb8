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
	"github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/registry"
)

// connectHost brings one host online. Connection-level failures are
// retried on the reconnection policy's schedule; when the schedule is
// exhausted the host stays offline for this episode. Each retry
// re-checks that the host is still wanted: a host_down withdraws it and
// the loop abandons. The caller must have put host into c.connecting.
func (c *Client) connectHost(ctx context.Context, host registry.Host) error {
	logger := c.logger.WithField("host", host.Address())
	distance := c.lb.Distance(host)
	if distance == lbpolicy.DistanceIgnore {
		c.withdrawHost(host)
		return nil
	}
	schedule := c.reconn.NewSchedule()
	for {
		conns, err := c.connector.Connect(ctx, host, distance)
		if err == nil {
			c.installConnections(host, conns)
			logger.WithField("connections", len(conns)).Debug("host online")
			return nil
		}
		if !errors.Is(err, conn.ErrConnection) {
			c.withdrawHost(host)
			return err
		}
		delay, ok := schedule.Next()
		if !ok {
			c.withdrawHost(host)
			logger.WithError(err).Warn("reconnection schedule exhausted, giving up on host")
			return err
		}
		logger.WithError(err).WithField("delay", delay).Debug("connection failed, will retry")
		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			c.withdrawHost(host)
			return ctx.Err()
		}
		c.mu.Lock()
		_, wanted := c.connecting[host]
		c.mu.Unlock()
		if !wanted {
			logger.Debug("host withdrawn, abandoning reconnection")
			return nil
		}
	}
}

func (c *Client) withdrawHost(host registry.Host) {
	c.mu.Lock()
	delete(c.connecting, host)
	c.mu.Unlock()
}

// installConnections lands freshly connected conns for host: the host
// leaves connecting, gets its connection set and prepared registry on
// first arrival, and the load balancer learns it is up.
func (c *Client) installConnections(host registry.Host, conns []conn.Conn) {
	c.mu.Lock()
	if c.state == stateClosing || c.state == stateClosed {
		c.mu.Unlock()
		for _, cn := range conns {
			_ = cn.Close()
		}
		return
	}
	delete(c.connecting, host)
	set := c.conns[host]
	if set == nil {
		set = newConnSet()
		c.conns[host] = set
		c.prepared[host] = newHostPrepared()
	}
	set.add(conns)
	c.mu.Unlock()

	if sink := c.hostSink(); sink != nil {
		sink.HostUp(host)
	}
}
