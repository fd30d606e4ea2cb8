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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	uberatomic "go.uber.org/atomic"

	"github.com/hornet-network/cqlcluster/conn"
	"github.com/hornet-network/cqlcluster/cql"
	"github.com/hornet-network/cqlcluster/internal"
	"github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/reconnect"
	"github.com/hornet-network/cqlcluster/registry"
	"github.com/hornet-network/cqlcluster/retry"
)

// Option is an option used to customize the behavior of a cluster client.
type Option interface {
	apply(*clientOptions)
}

// WithRootContext configures the root context used for any background
// goroutines the client creates, such as reconnection loops. If not
// specified, [context.Background] is used. It should only be cancelled
// after the client is no longer in use.
func WithRootContext(ctx context.Context) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.rootCtx = ctx
	})
}

// WithRegistry configures the topology source. Required.
func WithRegistry(reg registry.Registry) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.registry = reg
	})
}

// WithConnector configures how connections to a host are established.
// Required.
func WithConnector(connector conn.Connector) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.connector = connector
	})
}

// WithLoadBalancer configures the load-balancing policy. If the policy
// implements [lbpolicy.HostSink], the client feeds it the live host set
// as hosts come online and go down. Defaults to round-robin.
func WithLoadBalancer(policy lbpolicy.Policy) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.loadBalancer = policy
	})
}

// WithReconnectionPolicy configures the schedule used to retry hosts
// that cannot be connected. Defaults to an exponential schedule starting
// at 500ms and capped at 30s.
func WithReconnectionPolicy(policy reconnect.Policy) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.reconnection = policy
	})
}

// WithRetryPolicy configures how recoverable server errors are handled.
// Defaults to the conservative default policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.retry = policy
	})
}

// WithKeyspace sets the initial session keyspace: the default target
// keyspace of requests until a USE statement overrides it.
func WithKeyspace(keyspace string) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.keyspace = keyspace
	})
}

// WithDefaultConsistency sets the consistency used by requests whose
// options don't carry one. Defaults to ONE.
func WithDefaultConsistency(level cql.Consistency) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.consistency = level
	})
}

// WithRequestTimeout bounds every send, including keyspace switches and
// prepares performed on behalf of a request. Defaults to 12 seconds.
func WithRequestTimeout(timeout time.Duration) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.requestTimeout = timeout
	})
}

// WithLogger configures the logger. Defaults to the standard logrus
// logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.logger = logger
	})
}

// WithMetrics registers the client's counters with the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return optionFunc(func(opts *clientOptions) {
		opts.metricsRegisterer = reg
	})
}

type optionFunc func(*clientOptions)

func (f optionFunc) apply(opts *clientOptions) {
	f(opts)
}

type clientOptions struct {
	rootCtx           context.Context //nolint:containedctx
	registry          registry.Registry
	connector         conn.Connector
	loadBalancer      lbpolicy.Policy
	reconnection      reconnect.Policy
	retry             retry.Policy
	keyspace          string
	consistency       cql.Consistency
	requestTimeout    time.Duration
	logger            logrus.FieldLogger
	metricsRegisterer prometheus.Registerer
	clock             internal.Clock
}

func (opts *clientOptions) applyDefaults() {
	if opts.rootCtx == nil {
		opts.rootCtx = context.Background()
	}
	if opts.loadBalancer == nil {
		opts.loadBalancer = lbpolicy.NewRoundRobin()
	}
	if opts.reconnection == nil {
		opts.reconnection = reconnect.NewExponential(500*time.Millisecond, 30*time.Second, 0)
	}
	if opts.retry == nil {
		opts.retry = retry.NewDefault()
	}
	if opts.consistency == cql.Any {
		opts.consistency = cql.One
	}
	if opts.requestTimeout == 0 {
		opts.requestTimeout = 12 * time.Second
	}
	if opts.logger == nil {
		opts.logger = logrus.StandardLogger()
	}
	if opts.clock == nil {
		opts.clock = internal.NewRealClock()
	}
}

// Client dispatches requests across a cluster: it selects hosts via the
// load-balancing policy, keeps per-host connections and prepared ids,
// reacts to topology events, and retries per the retry policy. Create
// one with [New], bring it online with [Client.Connect], and share it
// freely across goroutines.
type Client struct {
	rootCtx   context.Context //nolint:containedctx
	cancel    context.CancelFunc
	registry  registry.Registry
	connector conn.Connector
	lb        lbpolicy.Policy
	reconn    reconnect.Policy
	retry     retry.Policy
	logger    logrus.FieldLogger
	metrics   *clientMetrics
	clock     internal.Clock

	defaultConsistency cql.Consistency
	requestTimeout     time.Duration

	// keyspace is the session keyspace: the last keyspace any
	// SET_KEYSPACE response named, shared by all in-flight requests.
	keyspace uberatomic.String

	mu sync.Mutex
	// +checklocks:mu
	state clientState
	// +checklocks:mu
	conns map[registry.Host]*connSet
	// +checklocks:mu
	prepared map[registry.Host]*hostPrepared
	// +checklocks:mu
	connecting map[registry.Host]struct{}
	// +checklocks:mu
	switches map[conn.Conn]*pendingSwitch

	// connectErr and closeErr are written before their done channel is
	// closed, so they may only be read after receiving from the channel.
	// +checklocks:mu
	connectDone chan struct{}
	connectErr  error
	// +checklocks:mu
	closeDone chan struct{}
	closeErr  error
}

// New returns a new cluster client using the given options. The client
// is idle until [Client.Connect] is called.
func New(options ...Option) (*Client, error) {
	var opts clientOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	if opts.registry == nil {
		return nil, errors.New("cqlcluster: a registry is required")
	}
	if opts.connector == nil {
		return nil, errors.New("cqlcluster: a connector is required")
	}
	ctx, cancel := context.WithCancel(opts.rootCtx)
	client := &Client{
		rootCtx:            ctx,
		cancel:             cancel,
		registry:           opts.registry,
		connector:          opts.connector,
		lb:                 opts.loadBalancer,
		reconn:             opts.reconnection,
		retry:              opts.retry,
		logger:             opts.logger,
		metrics:            newClientMetrics(opts.metricsRegisterer),
		clock:              opts.clock,
		defaultConsistency: opts.consistency,
		requestTimeout:     opts.requestTimeout,
		conns:              map[registry.Host]*connSet{},
		prepared:           map[registry.Host]*hostPrepared{},
		connecting:         map[registry.Host]struct{}{},
		switches:           map[conn.Conn]*pendingSwitch{},
	}
	client.keyspace.Store(opts.keyspace)
	return client, nil
}

// Keyspace returns the current session keyspace, "" if none.
func (c *Client) Keyspace() string {
	return c.keyspace.Load()
}

// hostSink returns the load balancer's host sink, if it tracks hosts.
func (c *Client) hostSink() lbpolicy.HostSink {
	sink, _ := c.lb.(lbpolicy.HostSink)
	return sink
}
