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

	"golang.org/x/sync/errgroup"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/registry"
)

// clientState is the lifecycle state of a client. Transitions are
// monotonic: idle → connecting → connected → closing → closed, with
// connecting → defunct → closing → closed on a failed connect. No
// transition ever reverses.
type clientState int

const (
	stateIdle clientState = iota
	stateConnecting
	stateConnected
	stateDefunct
	stateClosing
	stateClosed
)

func (s clientState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDefunct:
		return "defunct"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connect brings the client online: it registers for topology events
// and connects every known host in parallel. It fails with a
// [NoHostsAvailableError] when no host yields a connection; the client
// is then defunct and tears itself down. Concurrent and repeated calls
// share the outcome of the first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateConnecting, stateConnected, stateDefunct:
		done := c.connectDone
		c.mu.Unlock()
		select {
		case <-done:
			return c.connectErr
		case <-ctx.Done():
			return ctx.Err()
		}
	case stateClosing, stateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	case stateIdle:
	}
	c.state = stateConnecting
	c.connectDone = make(chan struct{})
	done := c.connectDone
	c.mu.Unlock()

	err := c.connectAll()

	c.mu.Lock()
	if err != nil {
		c.state = stateDefunct
	} else {
		c.state = stateConnected
	}
	c.mu.Unlock()
	c.connectErr = err
	close(done)

	if err != nil {
		c.logger.WithError(err).Warn("connect failed, closing client")
		_ = c.Close(ctx)
		return err
	}
	c.logger.Debug("client connected")
	return nil
}

func (c *Client) connectAll() error {
	c.registry.AddListener(c)
	hosts := c.registry.Hosts()

	c.mu.Lock()
	for _, host := range hosts {
		c.connecting[host] = struct{}{}
	}
	c.mu.Unlock()

	var (
		errsMu sync.Mutex
		errs   = map[registry.Host]error{}
	)
	var grp errgroup.Group
	for _, host := range hosts {
		host := host
		grp.Go(func() error {
			if err := c.connectHost(c.rootCtx, host); err != nil {
				errsMu.Lock()
				errs[host] = err
				errsMu.Unlock()
			}
			// errors are per-host, not fatal to the whole connect
			return nil
		})
	}
	_ = grp.Wait()

	c.mu.Lock()
	live := 0
	for _, set := range c.conns {
		live += len(set.snapshot())
	}
	c.mu.Unlock()
	if live == 0 {
		return &NoHostsAvailableError{Errors: errs}
	}
	return nil
}

// Close tears the client down: it deregisters from the registry, stops
// reconnection loops, and closes every connection, waiting for the
// closes to settle. A close issued while a connect is still in progress
// waits for the connect to settle first, whatever its outcome.
// Concurrent and repeated calls share the outcome of the first; Close
// on a client that never connected fails with [ErrClientNotConnected].
func (c *Client) Close(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case stateIdle:
			c.mu.Unlock()
			return ErrClientNotConnected
		case stateClosing, stateClosed:
			done := c.closeDone
			c.mu.Unlock()
			select {
			case <-done:
				return c.closeErr
			case <-ctx.Done():
				return ctx.Err()
			}
		case stateConnecting, stateDefunct:
			done := c.connectDone
			select {
			case <-done:
				// the connect has settled; fall into teardown
			default:
				c.mu.Unlock()
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
		case stateConnected:
		}
		break
	}

	// still holding c.mu
	c.state = stateClosing
	c.closeDone = make(chan struct{})
	done := c.closeDone
	sets := make([]*connSet, 0, len(c.conns))
	for _, set := range c.conns {
		sets = append(sets, set)
	}
	c.conns = map[registry.Host]*connSet{}
	c.prepared = map[registry.Host]*hostPrepared{}
	c.connecting = map[registry.Host]struct{}{}
	c.switches = map[conn.Conn]*pendingSwitch{}
	c.mu.Unlock()

	c.registry.RemoveListener(c)
	c.cancel()

	var grp errgroup.Group
	for _, set := range sets {
		grp.Go(set.closeAll)
	}
	err := grp.Wait()

	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	c.closeErr = err
	close(done)
	c.logger.Debug("client closed")
	return err
}

// checkConnected gates request dispatch on the lifecycle state.
func (c *Client) checkConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateConnected:
		return nil
	case stateDefunct, stateClosing, stateClosed:
		return ErrClientClosed
	default:
		return ErrClientNotConnected
	}
}
