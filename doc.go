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

// Package cqlcluster is the cluster client core of a CQL native-protocol
// driver. It dispatches queries, prepared executions and batches across
// a pool of per-host connections: for each request it selects a host
// via the load-balancing policy, makes sure the chosen connection is in
// the right keyspace, resolves host-local prepared-statement ids, sends
// the frame, and interprets the response, failing over to the next
// host on transport faults and retrying at the retry policy's direction
// on recoverable server errors.
//
// The client composes pluggable policy planes from the subpackages:
//
//   - [github.com/hornet-network/cqlcluster/lbpolicy] rates host
//     distance and produces per-request query plans.
//   - [github.com/hornet-network/cqlcluster/reconnect] schedules
//     reconnection attempts for hosts that cannot be connected.
//   - [github.com/hornet-network/cqlcluster/retry] decides what to do
//     with unavailable and timeout errors.
//
// Topology discovery, connection establishment and the wire codec are
// external collaborators, consumed through the contracts in
// [github.com/hornet-network/cqlcluster/registry] and
// [github.com/hornet-network/cqlcluster/conn].
//
// A minimal setup:
//
//	client, err := cqlcluster.New(
//		cqlcluster.WithRegistry(reg),
//		cqlcluster.WithConnector(connector),
//		cqlcluster.WithKeyspace("app"),
//	)
//	if err != nil {
//		// ...
//	}
//	if err := client.Connect(ctx); err != nil {
//		// ...
//	}
//	defer client.Close(context.Background())
//
//	result, err := client.Query(ctx, "SELECT * FROM users WHERE id = ?", values, nil)
//
// The client is safe for concurrent use. Prepared statements returned
// by [Client.Prepare] are cluster-wide handles: the id a node issues is
// only valid there, so the client re-prepares on whichever host a later
// execute lands on, de-duplicating concurrent prepares per host.
package cqlcluster
