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

package cql

import (
	"fmt"

	"github.com/google/uuid"
)

// Response is a semantic response frame produced by the connection layer.
// Trace returns the tracing session id the server attached, if any.
type Response interface {
	Trace() *uuid.UUID
}

// Traceable is embedded by every response type to carry the optional
// tracing session id.
type Traceable struct {
	TraceID *uuid.UUID
}

// Trace implements [Response].
func (t Traceable) Trace() *uuid.UUID {
	return t.TraceID
}

// VoidResult is the result of a request that returns no rows, such as an
// INSERT or a DDL statement.
type VoidResult struct {
	Traceable
}

// SetKeyspaceResult is the result of a successful USE statement. The
// keyspace it names becomes the session keyspace.
type SetKeyspaceResult struct {
	Traceable
	Keyspace string
}

// PreparedResult is the result of a PREPARE request. The id is only
// valid on the node that issued it.
type PreparedResult struct {
	Traceable
	ID             []byte
	Metadata       *Metadata
	ResultMetadata *Metadata
}

// RowsResult is the result of a request that returns rows, with the
// result metadata included in the response.
type RowsResult struct {
	Traceable
	Metadata    *Metadata
	Rows        []Values
	PagingState []byte
}

// RawRows is the result of an EXECUTE sent with SkipMetadata: the rows
// arrive without column metadata, and the caller materializes them with
// the metadata captured at prepare time.
type RawRows struct {
	Traceable
	Rows        []Values
	PagingState []byte
}

// Metadata describes the columns of a result set or the bind markers of
// a prepared statement.
type Metadata struct {
	Columns []Column
}

// Column is one column of a result set.
type Column struct {
	Keyspace string
	Table    string
	Name     string
	Type     string
}

// Error is a server error response. Detailed errors for which the
// protocol carries extra fields are the [Unavailable], [WriteTimeout]
// and [ReadTimeout] types, which embed Error.
type Error struct {
	Traceable
	Code    int32
	Message string
}

func (e *Error) String() string {
	return fmt.Sprintf("server error 0x%04x: %s", e.Code, e.Message)
}

// Unavailable reports that the coordinator knew too few replicas were
// alive to satisfy the requested consistency (code 0x1000).
type Unavailable struct {
	Error
	Consistency Consistency
	Required    int32
	Alive       int32
}

// WriteTimeout reports that a write did not gather enough acknowledgements
// in time (code 0x1100).
type WriteTimeout struct {
	Error
	Consistency Consistency
	Received    int32
	BlockFor    int32
	WriteType   string
}

// ReadTimeout reports that a read did not gather enough responses in
// time (code 0x1200). DataPresent is whether the data replica answered.
type ReadTimeout struct {
	Error
	Consistency Consistency
	Received    int32
	BlockFor    int32
	DataPresent bool
}

// AsError extracts the base error from any error response, detailed or
// plain. It returns nil if resp is not an error response.
func AsError(resp Response) *Error {
	switch r := resp.(type) {
	case *Error:
		return r
	case *Unavailable:
		return &r.Error
	case *WriteTimeout:
		return &r.Error
	case *ReadTimeout:
		return &r.Error
	default:
		return nil
	}
}

// Error codes of the native protocol.
const (
	CodeServerError    int32 = 0x0000
	CodeProtocolError  int32 = 0x000A
	CodeBadCredentials int32 = 0x0100
	CodeUnavailable    int32 = 0x1000
	CodeOverloaded     int32 = 0x1001
	CodeBootstrapping  int32 = 0x1002
	CodeTruncateError  int32 = 0x1003
	CodeWriteTimeout   int32 = 0x1100
	CodeReadTimeout    int32 = 0x1200
	CodeSyntaxError    int32 = 0x2000
	CodeUnauthorized   int32 = 0x2100
	CodeInvalid        int32 = 0x2200
	CodeConfigError    int32 = 0x2300
	CodeAlreadyExists  int32 = 0x2400
	CodeUnprepared     int32 = 0x2500
)
