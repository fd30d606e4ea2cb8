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
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hornet-network/cqlcluster/attribute"
	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/registry"
)

// fakeConn is a scripted connection: handler produces the response for
// each request, and every request is recorded. Keyspace tracking mimics
// a real connection: a SET_KEYSPACE result moves the connection into
// that keyspace.
type fakeConn struct {
	handler func(req cql.Request) (cql.Response, error)

	mu       sync.Mutex
	keyspace string
	sent     []cql.Request
	closed   bool
}

var _ conn.Conn = (*fakeConn)(nil)

func (f *fakeConn) SendRequest(_ context.Context, req cql.Request) (cql.Response, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errors.Wrap(conn.ErrConnection, "connection is closed")
	}
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	resp, err := f.handler(req)
	if r, ok := resp.(*cql.SetKeyspaceResult); ok && err == nil {
		f.mu.Lock()
		f.keyspace = r.Keyspace
		f.mu.Unlock()
	}
	return resp, err
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Keyspace() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyspace
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) sentRequests() []cql.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make([]cql.Request, len(f.sent))
	copy(snapshot, f.sent)
	return snapshot
}

// countSent returns how many recorded requests match the predicate.
func (f *fakeConn) countSent(match func(cql.Request) bool) int {
	count := 0
	for _, req := range f.sentRequests() {
		if match(req) {
			count++
		}
	}
	return count
}

func isPrepare(req cql.Request) bool {
	_, ok := req.(*cql.Prepare)
	return ok
}

func isUse(req cql.Request) bool {
	q, ok := req.(*cql.Query)
	return ok && len(q.Statement) >= 4 && q.Statement[:4] == "USE "
}

// rowsHandler answers every request with a single-page rows result.
func rowsHandler() func(cql.Request) (cql.Response, error) {
	return func(cql.Request) (cql.Response, error) {
		return &cql.RowsResult{
			Metadata: &cql.Metadata{Columns: []cql.Column{{Name: "id"}}},
			Rows:     []cql.Values{{[]byte("1")}},
		}, nil
	}
}

// connectorFunc adapts a function to the conn.Connector interface.
type connectorFunc func(ctx context.Context, host registry.Host, distance lbpolicy.Distance) ([]conn.Conn, error)

func (f connectorFunc) Connect(ctx context.Context, host registry.Host, distance lbpolicy.Distance) ([]conn.Conn, error) {
	return f(ctx, host, distance)
}

// staticConnector serves the given connections per host; hosts with no
// entry fail with a connection error.
func staticConnector(conns map[registry.Host][]conn.Conn) connectorFunc {
	return func(_ context.Context, host registry.Host, _ lbpolicy.Distance) ([]conn.Conn, error) {
		list, ok := conns[host]
		if !ok {
			return nil, errors.Wrap(conn.ErrConnection, "connection refused")
		}
		return list, nil
	}
}

// orderedPolicy plans hosts in a fixed order, for tests that need a
// deterministic plan.
type orderedPolicy struct {
	hosts []registry.Host
}

var _ lbpolicy.Policy = (*orderedPolicy)(nil)

func (p *orderedPolicy) Distance(registry.Host) lbpolicy.Distance {
	return lbpolicy.DistanceLocal
}

func (p *orderedPolicy) Plan(string, cql.Request) lbpolicy.Plan {
	return &orderedPlan{hosts: p.hosts}
}

type orderedPlan struct {
	hosts []registry.Host
	next  int
}

func (p *orderedPlan) Next() (registry.Host, bool) {
	if p.next >= len(p.hosts) {
		return nil, false
	}
	host := p.hosts[p.next]
	p.next++
	return host, true
}

func newHost(id, addr string) registry.Host {
	return registry.NewHost(id, addr, attribute.NewValues())
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, reg registry.Registry, connector conn.Connector, opts ...Option) *Client {
	t.Helper()
	options := append([]Option{
		WithRegistry(reg),
		WithConnector(connector),
		WithLogger(quietLogger()),
	}, opts...)
	client, err := New(options...)
	require.NoError(t, err)
	return client
}

// connectedClient builds a client over the given host/conn layout and
// connects it.
func connectedClient(t *testing.T, conns map[registry.Host][]conn.Conn, opts ...Option) *Client {
	t.Helper()
	hosts := make([]registry.Host, 0, len(conns))
	for host := range conns {
		hosts = append(hosts, host)
	}
	client := newTestClient(t, registry.NewStatic(hosts...), staticConnector(conns), opts...)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}
