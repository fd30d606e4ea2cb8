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
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/registry"
	"github.com/hornet-network/cqlcluster/retry"
)

// errTryNextHost is the dispatcher's internal signal that the current
// host failed at the transport level and the plan should advance.
var errTryNextHost = errors.New("try next host")

// attempt is the state of one request as it walks the query plan: the
// request frame (patched in place across retries), the effective
// options, every host actually tried, and each host's last error.
type attempt struct {
	req       cql.Request
	statement string
	keyspace  string
	timeout   time.Duration
	hosts     []registry.Host
	errs      map[registry.Host]error
	retries   int
}

func (att *attempt) info(resp cql.Response) ExecutionInfo {
	level, _ := cql.RequestConsistency(att.req)
	return ExecutionInfo{
		Keyspace:    att.keyspace,
		Statement:   att.statement,
		Hosts:       att.hosts,
		Consistency: level,
		Retries:     att.retries,
		TraceID:     resp.Trace(),
	}
}

// resolveOptions fills a request's options with the client defaults.
func (c *Client) resolveOptions(opts *Options) Options {
	var resolved Options
	if opts != nil {
		resolved = *opts
	}
	if resolved.Consistency == cql.Any {
		resolved.Consistency = c.defaultConsistency
	}
	if resolved.Timeout == 0 {
		resolved.Timeout = c.requestTimeout
	}
	if resolved.Keyspace == "" {
		resolved.Keyspace = c.keyspace.Load()
	}
	return resolved
}

func (c *Client) newAttempt(statement string, req cql.Request, opts Options) *attempt {
	return &attempt{
		req:       req,
		statement: statement,
		keyspace:  opts.Keyspace,
		timeout:   opts.Timeout,
		errs:      map[registry.Host]error{},
	}
}

// hostHook runs once per candidate host before the frame is sent; the
// execute and batch paths use it to resolve host-local prepared ids. A
// hook failure fails the request without advancing the plan.
type hostHook func(ctx context.Context, cn conn.Conn, prepared *hostPrepared) error

// dispatch is the request state machine every entry point shares. It
// walks the plan; for each host it picks a connection, aligns the
// keyspace, runs the hook, and sends. Transport faults advance the
// plan. Semantic failures (keyspace errors, prepare errors, server
// errors the retry policy did not absorb) surface immediately.
func (c *Client) dispatch(ctx context.Context, att *attempt, hook hostHook) (cql.Response, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	plan := c.lb.Plan(att.keyspace, att.req)
	for {
		host, ok := plan.Next()
		if !ok {
			return nil, &NoHostsAvailableError{Errors: att.errs}
		}
		c.mu.Lock()
		set := c.conns[host]
		prepared := c.prepared[host]
		c.mu.Unlock()
		if set == nil {
			// the host went away since the plan was made
			continue
		}
		cn, err := set.random()
		if err != nil {
			continue
		}
		att.hosts = append(att.hosts, host)

		if att.keyspace != "" && cn.Keyspace() != att.keyspace {
			if err := c.withDeadline(ctx, att.timeout, func(sctx context.Context) error {
				return c.switchKeyspace(sctx, cn, att.keyspace)
			}); err != nil {
				// keyspace errors are semantic, not host faults: fail
				// without advancing the plan
				return nil, err
			}
		}
		if hook != nil {
			if err := c.withDeadline(ctx, att.timeout, func(sctx context.Context) error {
				return hook(sctx, cn, prepared)
			}); err != nil {
				return nil, err
			}
		}

		resp, err := c.send(ctx, att, host, cn)
		if errors.Is(err, errTryNextHost) {
			continue
		}
		return resp, err
	}
}

// send delivers the attempt's frame on one connection and classifies
// the response, consulting the retry policy for recoverable server
// errors. Policy-driven retries stay on the same connection.
func (c *Client) send(ctx context.Context, att *attempt, host registry.Host, cn conn.Conn) (cql.Response, error) {
	for {
		var resp cql.Response
		err := c.withDeadline(ctx, att.timeout, func(sctx context.Context) error {
			var sendErr error
			resp, sendErr = cn.SendRequest(sctx, att.req)
			return sendErr
		})
		if err != nil {
			// transport fault: remember it and let the plan advance
			att.errs[host] = err
			c.metrics.hostErrors.Inc()
			return nil, errTryNextHost
		}

		var decision retry.Decision
		switch r := resp.(type) {
		case *cql.Unavailable:
			decision = c.retry.Unavailable(att.req, r.Consistency, r.Required, r.Alive, att.retries)
		case *cql.WriteTimeout:
			decision = c.retry.WriteTimeout(att.req, r.Consistency, r.WriteType, r.BlockFor, r.Received, att.retries)
		case *cql.ReadTimeout:
			decision = c.retry.ReadTimeout(att.req, r.Consistency, r.BlockFor, r.Received, r.DataPresent, att.retries)
		case *cql.Error:
			return nil, newQueryError(r, att.statement)
		case *cql.SetKeyspaceResult:
			c.keyspace.Store(r.Keyspace)
			return r, nil
		case *cql.PreparedResult:
			c.storePrepared(host, att.statement, r.ID)
			return r, nil
		default:
			return resp, nil
		}

		if level, ok := decision.Retry(); ok {
			cql.PatchConsistency(att.req, level)
			att.retries++
			c.metrics.retries.Inc()
			continue
		}
		if decision.Ignored() {
			return &cql.VoidResult{Traceable: cql.Traceable{TraceID: resp.Trace()}}, nil
		}
		return nil, newQueryError(resp, att.statement)
	}
}

func (c *Client) withDeadline(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(dctx)
}

func (c *Client) storePrepared(host registry.Host, statement string, id []byte) {
	if statement == "" {
		return
	}
	c.mu.Lock()
	prepared := c.prepared[host]
	c.mu.Unlock()
	if prepared != nil {
		prepared.store(statement, id)
	}
}

func (c *Client) buildResult(resp cql.Response, att *attempt, meta *cql.Metadata) *Result {
	result := &Result{Info: att.info(resp)}
	switch r := resp.(type) {
	case *cql.RowsResult:
		result.Metadata = r.Metadata
		result.Rows = r.Rows
		result.PagingState = r.PagingState
	case *cql.RawRows:
		result.Metadata = meta
		result.Rows = r.Rows
		result.PagingState = r.PagingState
	}
	return result
}

// Query executes a single CQL statement.
func (c *Client) Query(ctx context.Context, statement string, values cql.Values, opts *Options) (result *Result, err error) {
	defer func() { c.metrics.observeRequest("query", err) }()
	resolved := c.resolveOptions(opts)
	req := &cql.Query{
		Statement:         statement,
		Values:            values,
		Consistency:       resolved.Consistency,
		SerialConsistency: resolved.SerialConsistency,
		PageSize:          resolved.PageSize,
		PagingState:       resolved.PagingState,
	}
	att := c.newAttempt(statement, req, resolved)
	resp, err := c.dispatch(ctx, att, nil)
	if err != nil {
		return nil, err
	}
	return c.buildResult(resp, att, nil), nil
}

// Prepare prepares a statement on one host and returns a handle that
// can be executed anywhere: later executes prepare the statement on
// whichever host they land on, first use only.
func (c *Client) Prepare(ctx context.Context, statement string, opts *Options) (prepared *Prepared, err error) {
	defer func() { c.metrics.observeRequest("prepare", err) }()
	resolved := c.resolveOptions(opts)
	req := &cql.Prepare{Statement: statement}
	att := c.newAttempt(statement, req, resolved)
	resp, err := c.dispatch(ctx, att, nil)
	if err != nil {
		return nil, err
	}
	prep, ok := resp.(*cql.PreparedResult)
	if !ok {
		return nil, errors.Errorf("unexpected response %T to PREPARE", resp)
	}
	return &Prepared{
		Statement:      statement,
		Metadata:       prep.Metadata,
		ResultMetadata: prep.ResultMetadata,
		Info:           att.info(resp),
	}, nil
}

// Execute executes a prepared statement. The prepared id is host-local:
// if the chosen host doesn't know the statement yet it is prepared
// there first, with concurrent executes sharing a single prepare.
func (c *Client) Execute(ctx context.Context, prepared *Prepared, values cql.Values, opts *Options) (result *Result, err error) {
	defer func() { c.metrics.observeRequest("execute", err) }()
	resolved := c.resolveOptions(opts)
	req := &cql.Execute{
		Values:            values,
		Consistency:       resolved.Consistency,
		SerialConsistency: resolved.SerialConsistency,
		PageSize:          resolved.PageSize,
		PagingState:       resolved.PagingState,
		SkipMetadata:      prepared.ResultMetadata != nil,
	}
	att := c.newAttempt(prepared.Statement, req, resolved)
	hook := func(hctx context.Context, cn conn.Conn, reg *hostPrepared) error {
		if reg == nil {
			return errors.New("host lost its prepared-statement registry")
		}
		id, err := reg.prepare(hctx, cn, prepared.Statement)
		if err != nil {
			return err
		}
		req.ID = id
		return nil
	}
	resp, err := c.dispatch(ctx, att, hook)
	if err != nil {
		return nil, err
	}
	return c.buildResult(resp, att, prepared.ResultMetadata), nil
}

// Batch executes a batch. Prepared entries have their ids resolved on
// the chosen host before the frame is sent: known ids are spliced in
// directly, the rest are prepared concurrently, one prepare per
// distinct statement, and the frame goes out once all have joined.
func (c *Client) Batch(ctx context.Context, batch *Batch, opts *Options) (result *Result, err error) {
	defer func() { c.metrics.observeRequest("batch", err) }()
	resolved := c.resolveOptions(opts)
	entries := make([]cql.BatchEntry, len(batch.entries))
	var boundIdx []int
	for i, entry := range batch.entries {
		entries[i] = cql.BatchEntry{Statement: entry.statement, Values: entry.values}
		if entry.prepared != nil {
			boundIdx = append(boundIdx, i)
		}
	}
	req := &cql.Batch{
		Type:              batch.Type,
		Entries:           entries,
		Consistency:       resolved.Consistency,
		SerialConsistency: resolved.SerialConsistency,
	}
	att := c.newAttempt("", req, resolved)
	hook := func(hctx context.Context, cn conn.Conn, reg *hostPrepared) error {
		if len(boundIdx) == 0 {
			return nil
		}
		if reg == nil {
			return errors.New("host lost its prepared-statement registry")
		}
		// ids from a previously tried host are stale here
		for _, i := range boundIdx {
			req.Entries[i].ID = nil
		}
		unprepared := map[string][]byte{}
		for _, i := range boundIdx {
			statement := req.Entries[i].Statement
			if id, ok := reg.lookup(statement); ok {
				req.Entries[i].ID = id
				continue
			}
			unprepared[statement] = nil
		}
		if len(unprepared) == 0 {
			return nil
		}
		var (
			idsMu sync.Mutex
			grp   errgroup.Group
		)
		for statement := range unprepared {
			statement := statement
			grp.Go(func() error {
				id, err := reg.prepare(hctx, cn, statement)
				if err != nil {
					return err
				}
				idsMu.Lock()
				unprepared[statement] = id
				idsMu.Unlock()
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return err
		}
		for _, i := range boundIdx {
			if req.Entries[i].ID == nil {
				req.Entries[i].ID = unprepared[req.Entries[i].Statement]
			}
		}
		return nil
	}
	resp, err := c.dispatch(ctx, att, hook)
	if err != nil {
		return nil, err
	}
	return c.buildResult(resp, att, nil), nil
}
