// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-sink/payload"
	. "github.com/openthread/ot-sink/types"
)

func writeFile(t *testing.T, name string, content string) string {
	fn := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Coordinator.DumpEvery())
	assert.Equal(t, []NodeId{4, 15, 88, 171}, cfg.Domain().Ids())

	v, err := cfg.PayloadVariant()
	require.NoError(t, err)
	assert.Equal(t, payload.VariantParent, v)
}

func TestLoadYaml(t *testing.T) {
	fn := writeFile(t, "node.yaml", `
role: node
variant: extended
nodes: [4, 15]
node:
  id: 15
  root: fd00::1
  parent: fd00::4
  report_interval: 2s
  ping_interval: "0"
`)
	cfg, err := Load(fn)
	require.NoError(t, err)
	assert.Equal(t, RoleNode, cfg.Role)
	assert.Equal(t, 15, cfg.Node.Id)
	assert.Equal(t, "fd00::1", cfg.Node.Root)
	assert.Equal(t, 2*time.Second, cfg.Node.ReportEvery())
	assert.Equal(t, time.Duration(0), cfg.Node.PingEvery())
	assert.Equal(t, DefaultHopLimit, cfg.Node.HopLimit)
	assert.Equal(t, []NodeId{4, 15}, cfg.Domain().Ids())
}

func TestLoadHcl(t *testing.T) {
	fn := writeFile(t, "sim.hcl", `
role = "sim"
log_level = "debug"

coordinator {
  dump_interval = "2s"
  metrics = ":9100"
}

sim {
  seed = 42
  plr = 0.1

  leaf {
    id = 4
    x = 10
  }

  leaf {
    id = 88
    parent = 4
    x = 20
    fail_duration = "30s"
    fail_interval = "1m"
  }
}
`)
	cfg, err := Load(fn)
	require.NoError(t, err)
	assert.Equal(t, RoleSim, cfg.Role)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.Coordinator.DumpEvery())
	assert.Equal(t, ":9100", cfg.Coordinator.Metrics)
	assert.Equal(t, int64(42), cfg.Sim.Seed)
	assert.InDelta(t, 0.1, cfg.Sim.Plr, 1e-9)
	require.Len(t, cfg.Sim.Leaves, 2)
	assert.Equal(t, SimLeaf{Id: 88, Parent: 4, X: 20, FailDuration: "30s", FailInterval: "1m"}, cfg.Sim.Leaves[1])
	d, itv := cfg.Sim.Leaves[1].FailEvery()
	assert.Equal(t, 30*time.Second, d)
	assert.Equal(t, time.Minute, itv)
	d, itv = cfg.Sim.Leaves[0].FailEvery()
	assert.Zero(t, d)
	assert.Zero(t, itv)
	assert.Equal(t, []NodeId{4, 88}, cfg.Domain().Ids())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "cfg.toml", "role = 1"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "role: [1"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "role: router"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(cfg *Config){
		"variant":       func(cfg *Config) { cfg.Variant = "huge" },
		"node id range": func(cfg *Config) { cfg.Nodes = []int{0} },
		"dump interval": func(cfg *Config) { cfg.Coordinator.DumpInterval = "0s" },
		"node without id": func(cfg *Config) {
			cfg.Role = RoleNode
		},
		"node root": func(cfg *Config) {
			cfg.Role = RoleNode
			cfg.Node.Id = 4
			cfg.Node.Root = "not-an-address"
		},
		"node ipv4 parent": func(cfg *Config) {
			cfg.Role = RoleNode
			cfg.Node.Id = 4
			cfg.Node.Parent = "10.0.0.4"
		},
		"node mapped parent": func(cfg *Config) {
			cfg.Role = RoleNode
			cfg.Node.Id = 4
			cfg.Node.Parent = "::ffff:10.0.0.4"
		},
		"sim plr": func(cfg *Config) {
			cfg.Role = RoleSim
			cfg.Sim.Plr = 1.5
		},
		"sim radio model": func(cfg *Config) {
			cfg.Role = RoleSim
			cfg.Sim.RadioModel = "free-space"
		},
		"sim duplicate leaf": func(cfg *Config) {
			cfg.Role = RoleSim
			cfg.Sim.Leaves = []SimLeaf{{Id: 4}, {Id: 4}}
		},
		"sim fail interval": func(cfg *Config) {
			cfg.Role = RoleSim
			cfg.Sim.Leaves = []SimLeaf{{Id: 4, FailDuration: "10s", FailInterval: "5s"}}
		},
		"sim fail duration": func(cfg *Config) {
			cfg.Role = RoleSim
			cfg.Sim.Leaves = []SimLeaf{{Id: 4, FailDuration: "often"}}
		},
		"sim unknown parent": func(cfg *Config) {
			cfg.Role = RoleSim
			cfg.Sim.Leaves = []SimLeaf{{Id: 4, Parent: 15}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
