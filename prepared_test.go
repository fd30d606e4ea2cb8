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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-network/cqlcluster/cql"
)

func TestPrepareCachesID(t *testing.T) {
	t.Parallel()

	cn := &fakeConn{handler: func(req cql.Request) (cql.Response, error) {
		return &cql.PreparedResult{ID: []byte("prep-1")}, nil
	}}
	registry := newHostPrepared()

	id, err := registry.prepare(context.Background(), cn, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []byte("prep-1"), id)

	cached, ok := registry.lookup("SELECT 1")
	require.True(t, ok)
	assert.Equal(t, []byte("prep-1"), cached)

	// a second prepare is served from the cache
	_, err = registry.prepare(context.Background(), cn, "SELECT 1")
	require.NoError(t, err)
	assert.Len(t, cn.sentRequests(), 1)
}

func TestPrepareDeduplicatesConcurrentCalls(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	cn := &fakeConn{handler: func(req cql.Request) (cql.Response, error) {
		<-gate
		return &cql.PreparedResult{ID: []byte("prep-1")}, nil
	}}
	registry := newHostPrepared()

	var grp sync.WaitGroup
	ids := make([][]byte, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		i := i
		grp.Add(1)
		go func() {
			defer grp.Done()
			ids[i], errs[i] = registry.prepare(context.Background(), cn, "SELECT 1")
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	grp.Wait()

	// exactly one PREPARE frame, and every caller saw the same id
	assert.Len(t, cn.sentRequests(), 1)
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("prep-1"), ids[i])
	}
}

func TestPrepareServerErrorLeavesRegistryUnpopulated(t *testing.T) {
	t.Parallel()

	cn := &fakeConn{handler: func(req cql.Request) (cql.Response, error) {
		return &cql.Error{Code: cql.CodeInvalid, Message: "unknown table"}, nil
	}}
	registry := newHostPrepared()

	_, err := registry.prepare(context.Background(), cn, "SELECT 1")
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, cql.CodeInvalid, queryErr.Code)

	_, ok := registry.lookup("SELECT 1")
	assert.False(t, ok)

	// the failure is not sticky: a later prepare tries again
	_, err = registry.prepare(context.Background(), cn, "SELECT 1")
	require.Error(t, err)
	assert.Len(t, cn.sentRequests(), 2)
}
