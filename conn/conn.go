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

// Package conn provides the representation of a logical connection to a
// single cluster node, and the connector that establishes connections.
// The connection owns the wire: framing, stream multiplexing and
// response demultiplexing happen below this interface. The cluster
// client only sends semantic requests and reads semantic responses.
package conn

import (
	"context"
	"errors"

	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/registry"
)

// ErrConnection marks connection-level faults: a broken socket, a failed
// handshake, a request that died with its connection. Implementations
// report such faults as errors wrapping ErrConnection, so callers can
// tell transport failures apart from lifecycle misuse with [errors.Is].
// Server error responses are never reported this way; they arrive as
// [cql.Error] values.
var ErrConnection = errors.New("connection error")

// Conn is a logical connection to one node. It is owned by exactly one
// host's connection set at a time and must never be used for another
// host.
type Conn interface {
	// SendRequest sends the given request and blocks until the matching
	// response arrives, the context is done, or the connection fails. A
	// non-nil error is always a transport fault (wrapping ErrConnection)
	// or a context error; server errors are returned as responses.
	// Responses for requests sent on one connection are delivered in the
	// order the requests were sent.
	SendRequest(ctx context.Context, req cql.Request) (cql.Response, error)
	// Close tears the connection down. In-flight requests fail with a
	// transport fault. Close is idempotent.
	Close() error
	// Keyspace returns the keyspace this connection is currently USE'd
	// into, or "" if none. Tracking is the connection layer's job: it
	// observes SET_KEYSPACE results on its own wire.
	Keyspace() string
}

// Connector establishes the initial set of connections for a host. How
// many connections it opens is driven by the host's distance.
type Connector interface {
	Connect(ctx context.Context, host registry.Host, distance lbpolicy.Distance) ([]Conn, error)
}
