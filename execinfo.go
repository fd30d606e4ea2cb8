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
	"time"

	"github.com/google/uuid"

	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
)

// Options tune one request. A nil *Options or a zero field means the
// client default: the session keyspace, the client's default consistency
// and request timeout, no paging.
type Options struct {
	// Consistency for the request. The zero value (ANY) selects the
	// client default.
	Consistency cql.Consistency
	// SerialConsistency for the conditional phase of the request.
	SerialConsistency cql.Consistency
	// Keyspace the request targets. Empty selects the session keyspace.
	Keyspace string
	// PageSize limits how many rows a single response page carries.
	PageSize int32
	// PagingState resumes a previous paged result.
	PagingState []byte
	// Timeout bounds each send, including keyspace and prepare
	// sub-requests.
	Timeout time.Duration
}

// ExecutionInfo is attached to every result: where the request went and
// what it took to complete.
type ExecutionInfo struct {
	// Keyspace the request was executed against ("" if none).
	Keyspace string
	// Statement text, where the request had a single one.
	Statement string
	// Hosts actually tried, in order. The last entry answered.
	Hosts []registry.Host
	// Consistency the request finally completed at.
	Consistency cql.Consistency
	// Retries performed by the retry policy.
	Retries int
	// TraceID of the server-side trace, if tracing was on.
	TraceID *uuid.UUID
}

// Result is the outcome of a query, execute or batch.
type Result struct {
	// Metadata describes Rows' columns. For an execute of a prepared
	// statement it is the metadata captured at prepare time.
	Metadata *cql.Metadata
	// Rows holds the raw row values of this page; empty for requests
	// that return no rows.
	Rows []cql.Values
	// PagingState resumes the next page when non-nil.
	PagingState []byte
	// Info describes the execution.
	Info ExecutionInfo
}

// Prepared is a statement prepared across the cluster. The id a node
// issued is host-local, so Prepared carries none; the client resolves
// the id for whichever host a later execute lands on, preparing there
// on first use.
type Prepared struct {
	// Statement is the prepared CQL text.
	Statement string
	// Metadata describes the bind markers.
	Metadata *cql.Metadata
	// ResultMetadata describes the columns executes will return.
	ResultMetadata *cql.Metadata
	// Info describes the preparing execution.
	Info ExecutionInfo
}

// Batch accumulates statements for batched execution. Entries may mix
// plain statements and prepared statements; prepared entries have their
// host-local ids spliced in at dispatch time.
type Batch struct {
	// Type selects the batch semantics; the zero value is a logged
	// batch.
	Type cql.BatchType

	entries []batchEntry
}

type batchEntry struct {
	statement string
	prepared  *Prepared
	values    cql.Values
}

// Add appends a plain statement to the batch.
func (b *Batch) Add(statement string, values cql.Values) *Batch {
	b.entries = append(b.entries, batchEntry{statement: statement, values: values})
	return b
}

// AddPrepared appends a prepared statement to the batch.
func (b *Batch) AddPrepared(prepared *Prepared, values cql.Values) *Batch {
	b.entries = append(b.entries, batchEntry{prepared: prepared, statement: prepared.Statement, values: values})
	return b
}

// Len returns the number of statements in the batch.
func (b *Batch) Len() int {
	return len(b.entries)
}
