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

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-network/cqlcluster/attribute"
	. "github.com/hornet-network/cqlcluster/registry"
)

type recordingListener struct {
	up   []Host
	down []Host
}

func (l *recordingListener) HostFound(Host) {}
func (l *recordingListener) HostLost(Host)  {}
func (l *recordingListener) HostUp(host Host) {
	l.up = append(l.up, host)
}
func (l *recordingListener) HostDown(host Host) {
	l.down = append(l.down, host)
}

func TestStaticRegistryHosts(t *testing.T) {
	t.Parallel()

	host := NewHost("h1", "10.0.0.1:9042", attribute.NewValues(Datacenter.Value("dc1")))
	reg := NewStatic(host)
	hosts := reg.Hosts()
	require.Len(t, hosts, 1)
	assert.Equal(t, "h1", hosts[0].ID())
	assert.Equal(t, "10.0.0.1:9042", hosts[0].Address())

	dc, ok := attribute.GetValue(hosts[0].Attributes(), Datacenter)
	require.True(t, ok)
	assert.Equal(t, "dc1", dc)
}

func TestStaticRegistryListeners(t *testing.T) {
	t.Parallel()

	host := NewHost("h1", "10.0.0.1:9042", attribute.NewValues())
	reg := NewStatic(host)
	listener := &recordingListener{}
	reg.AddListener(listener)

	reg.MarkUp(host)
	reg.MarkDown(host)
	assert.Equal(t, []Host{host}, listener.up)
	assert.Equal(t, []Host{host}, listener.down)

	reg.RemoveListener(listener)
	reg.MarkUp(host)
	assert.Len(t, listener.up, 1)
}
