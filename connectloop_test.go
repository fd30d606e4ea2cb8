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
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/reconnect"
	"github.com/hornet-network/cqlcluster/registry"
)

// flakyConnector fails with connection errors until the given number of
// attempts have been made.
type flakyConnector struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	succeeded bool
}

func (f *flakyConnector) Connect(_ context.Context, _ registry.Host, _ lbpolicy.Distance) ([]conn.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.Wrap(conn.ErrConnection, "connection refused")
	}
	f.succeeded = true
	return []conn.Conn{&fakeConn{handler: rowsHandler()}}, nil
}

func (f *flakyConnector) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestConnectRetriesOnSchedule(t *testing.T) {
	t.Parallel()

	host := newHost("h1", "10.0.0.1:9042")
	connector := &flakyConnector{failures: 2}
	clock := clockwork.NewFakeClock()
	client := newTestClient(t, registry.NewStatic(host), connector,
		WithReconnectionPolicy(reconnect.NewConstant(time.Second, 5)),
	)
	client.clock = clock

	done := make(chan error, 1)
	go func() { done <- client.Connect(context.Background()) }()

	for i := 0; i < 2; i++ {
		// the loop is sleeping between attempts
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}
	require.NoError(t, <-done)
	assert.Equal(t, 3, connector.attemptCount())
	require.NoError(t, client.Close(context.Background()))
}

func TestConnectGivesUpWhenScheduleExhausted(t *testing.T) {
	t.Parallel()

	host := newHost("h1", "10.0.0.1:9042")
	connector := &flakyConnector{failures: 100}
	clock := clockwork.NewFakeClock()
	client := newTestClient(t, registry.NewStatic(host), connector,
		WithReconnectionPolicy(reconnect.NewConstant(time.Second, 2)),
	)
	client.clock = clock

	done := make(chan error, 1)
	go func() { done <- client.Connect(context.Background()) }()

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}
	err := <-done
	var noHosts *NoHostsAvailableError
	require.ErrorAs(t, err, &noHosts)
	// initial attempt plus the two scheduled retries
	assert.Equal(t, 3, connector.attemptCount())
}

func TestReconnectAbandonsWithdrawnHost(t *testing.T) {
	t.Parallel()

	host1 := newHost("h1", "10.0.0.1:9042")
	host2 := newHost("h2", "10.0.0.2:9042")
	clock := clockwork.NewFakeClock()
	connector := connectorFunc(func(_ context.Context, h registry.Host, _ lbpolicy.Distance) ([]conn.Conn, error) {
		if h == host2 {
			return []conn.Conn{&fakeConn{handler: rowsHandler()}}, nil
		}
		return nil, errors.Wrap(conn.ErrConnection, "connection refused")
	})
	client := newTestClient(t, registry.NewStatic(host1, host2), connector,
		WithReconnectionPolicy(reconnect.NewConstant(time.Second, 100)),
	)
	client.clock = clock

	done := make(chan error, 1)
	go func() { done <- client.Connect(context.Background()) }()

	// host2 connects; host1's loop is asleep waiting for its retry
	clock.BlockUntil(1)
	// a host_down for host1 withdraws it mid-schedule
	client.HostDown(host1)
	clock.Advance(time.Second)

	require.NoError(t, <-done)
	client.mu.Lock()
	_, stillConnecting := client.connecting[host1]
	client.mu.Unlock()
	assert.False(t, stillConnecting)
	require.NoError(t, client.Close(context.Background()))
}
