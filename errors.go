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
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
)

var (
	// ErrClientClosed is returned by operations on a client that is
	// closing or closed.
	ErrClientClosed = errors.New("client is closed")
	// ErrClientNotConnected is returned by operations that require a
	// connected client, on a client that never connected.
	ErrClientNotConnected = errors.New("client is not connected")

	// errNoConnection is the internal miss raised when a host's
	// connection set is empty at dispatch time. The dispatcher converts
	// it into a plan advance; it never reaches callers.
	errNoConnection = errors.New("no connection")
)

// NoHostsAvailableError is returned when the query plan is exhausted
// without any host producing a response, or when connecting yields no
// usable host. Errors maps each host that was tried to the last error
// it produced.
type NoHostsAvailableError struct {
	Errors map[registry.Host]error
}

func (e *NoHostsAvailableError) Error() string {
	if len(e.Errors) == 0 {
		return "no hosts available"
	}
	parts := make([]string, 0, len(e.Errors))
	for host, err := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", host.Address(), err))
	}
	sort.Strings(parts)
	return "no hosts available (" + strings.Join(parts, "; ") + ")"
}

// QueryError is a server-side error that the retry policy chose not to
// convert into a retry, or an error response with no recovery path.
type QueryError struct {
	Code      int32
	Message   string
	Statement string
	// Details is the detailed error response the server sent, when the
	// code carries one: *cql.Unavailable, *cql.WriteTimeout or
	// *cql.ReadTimeout. Nil for plain errors.
	Details cql.Response
}

func (e *QueryError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("query error 0x%04x: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("query error 0x%04x: %s (statement: %q)", e.Code, e.Message, e.Statement)
}

// newQueryError builds a QueryError from any error response, keeping
// the detailed response intact when the server reported one.
func newQueryError(resp cql.Response, statement string) *QueryError {
	base := cql.AsError(resp)
	queryErr := &QueryError{Code: base.Code, Message: base.Message, Statement: statement}
	switch resp.(type) {
	case *cql.Unavailable, *cql.WriteTimeout, *cql.ReadTimeout:
		queryErr.Details = resp
	}
	return queryErr
}
