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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/registry"
)

func TestHostDownTearsDownHostState(t *testing.T) {
	t.Parallel()

	host1 := newHost("h1", "10.0.0.1:9042")
	host2 := newHost("h2", "10.0.0.2:9042")
	cn1 := &fakeConn{}
	cn1.handler = func(req cql.Request) (cql.Response, error) {
		if isPrepare(req) {
			return &cql.PreparedResult{ID: []byte("prep-1")}, nil
		}
		return rowsHandler()(req)
	}
	cn2 := &fakeConn{handler: rowsHandler()}
	client := connectedClient(t,
		map[registry.Host][]conn.Conn{host1: {cn1}, host2: {cn2}},
		WithLoadBalancer(&orderedPolicy{hosts: []registry.Host{host1, host2}}),
	)

	// seed prepared state on host1
	_, err := client.Prepare(context.Background(), "SELECT * FROM t WHERE id = ?", nil)
	require.NoError(t, err)

	require.NoError(t, client.hostDown(host1))
	assert.True(t, cn1.isClosed())

	client.mu.Lock()
	_, hasConns := client.conns[host1]
	_, hasPrepared := client.prepared[host1]
	client.mu.Unlock()
	assert.False(t, hasConns)
	assert.False(t, hasPrepared)

	// dispatch no longer selects host1: the plan skips to host2
	result, err := client.Query(context.Background(), "SELECT * FROM t", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []registry.Host{host2}, result.Info.Hosts)
}

func TestHostUpBringsHostBack(t *testing.T) {
	t.Parallel()

	host := newHost("h1", "10.0.0.1:9042")
	reg := registry.NewStatic(host)
	// a fresh connection per connect, as a real connector would open
	connector := connectorFunc(func(context.Context, registry.Host, lbpolicy.Distance) ([]conn.Conn, error) {
		return []conn.Conn{&fakeConn{handler: rowsHandler()}}, nil
	})
	client := newTestClient(t, reg, connector)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	require.NoError(t, client.hostDown(host))
	_, err := client.Query(context.Background(), "SELECT * FROM t", nil, nil)
	var noHosts *NoHostsAvailableError
	require.ErrorAs(t, err, &noHosts)

	reg.MarkUp(host)
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.conns[host] != nil
	}, time.Second, 5*time.Millisecond)

	_, err = client.Query(context.Background(), "SELECT * FROM t", nil, nil)
	require.NoError(t, err)
}

func TestHostUpWhileAlreadyConnectingIsIgnored(t *testing.T) {
	t.Parallel()

	host := newHost("h1", "10.0.0.1:9042")
	client := connectedClient(t, map[registry.Host][]conn.Conn{host: {&fakeConn{handler: rowsHandler()}}})

	client.mu.Lock()
	client.connecting[host] = struct{}{}
	client.mu.Unlock()

	client.HostUp(host)
	client.mu.Lock()
	defer client.mu.Unlock()
	// still marked as a single in-flight attempt
	_, inFlight := client.connecting[host]
	assert.True(t, inFlight)
}

func TestFoundAndLostAreNoOps(t *testing.T) {
	t.Parallel()

	host := newHost("h1", "10.0.0.1:9042")
	client := connectedClient(t, map[registry.Host][]conn.Conn{host: {&fakeConn{handler: rowsHandler()}}})

	client.HostFound(host)
	client.HostLost(host)
	result, err := client.Query(context.Background(), "SELECT * FROM t", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []registry.Host{host}, result.Info.Hosts)
}
