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

package lbpolicy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-network/cqlcluster/attribute"
	. "github.com/hornet-network/cqlcluster/lbpolicy"
	"github.com/hornet-network/cqlcluster/registry"
)

func collect(plan Plan) []registry.Host {
	var hosts []registry.Host
	for {
		host, ok := plan.Next()
		if !ok {
			return hosts
		}
		hosts = append(hosts, host)
	}
}

func TestRoundRobinRotates(t *testing.T) {
	t.Parallel()

	policy := NewRoundRobin()
	host1 := registry.NewHost("h1", "10.0.0.1:9042", attribute.NewValues())
	host2 := registry.NewHost("h2", "10.0.0.2:9042", attribute.NewValues())
	host3 := registry.NewHost("h3", "10.0.0.3:9042", attribute.NewValues())
	policy.HostUp(host1)
	policy.HostUp(host2)
	policy.HostUp(host3)

	first := collect(policy.Plan("", nil))
	second := collect(policy.Plan("", nil))
	require.Len(t, first, 3)
	require.Len(t, second, 3)
	// consecutive plans start at consecutive offsets
	assert.Equal(t, first[1], second[0])
}

func TestRoundRobinEmptyPlan(t *testing.T) {
	t.Parallel()

	policy := NewRoundRobin()
	_, ok := policy.Plan("", nil).Next()
	assert.False(t, ok)
}

func TestRoundRobinHostDownRemoves(t *testing.T) {
	t.Parallel()

	policy := NewRoundRobin()
	host1 := registry.NewHost("h1", "10.0.0.1:9042", attribute.NewValues())
	host2 := registry.NewHost("h2", "10.0.0.2:9042", attribute.NewValues())
	policy.HostUp(host1)
	policy.HostUp(host2)
	policy.HostUp(host1) // duplicate ups are ignored
	policy.HostDown(host1)

	hosts := collect(policy.Plan("", nil))
	assert.Equal(t, []registry.Host{host2}, hosts)
}
