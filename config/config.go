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

// Package config loads the otsink configuration from YAML or HCL files.
package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-sink/payload"
	"github.com/openthread/ot-sink/radiomodel"
	. "github.com/openthread/ot-sink/types"
)

const (
	RoleCoordinator = "coordinator"
	RoleNode        = "node"
	RoleSim         = "sim"
)

const (
	DefaultLogLevel       = "info"
	DefaultHopLimit       = 64
	DefaultDumpInterval   = "5s"
	DefaultReportInterval = "20s"
	DefaultPingInterval   = "10s"
	DefaultRadioModel     = radiomodel.ModelItu
	DefaultPcapType       = "ipv6"
)

type Config struct {
	Role     string `yaml:"role" hcl:"role"`
	LogLevel string `yaml:"log_level" hcl:"log_level"`

	// LogDir, if set, receives one log file per node.
	LogDir  string `yaml:"log_dir" hcl:"log_dir"`
	Variant string `yaml:"variant" hcl:"variant"`
	Port    int    `yaml:"port" hcl:"port"`

	// Nodes is the node id domain. Empty means the default ids.
	Nodes       []int       `yaml:"nodes" hcl:"nodes"`
	Console     bool        `yaml:"console" hcl:"console"`
	Coordinator Coordinator `yaml:"coordinator" hcl:"coordinator"`
	Node        Node        `yaml:"node" hcl:"node"`
	Sim         Sim         `yaml:"sim" hcl:"sim"`
}

type Coordinator struct {
	Listen       string `yaml:"listen" hcl:"listen"`
	HopLimit     int    `yaml:"hop_limit" hcl:"hop_limit"`
	DumpInterval string `yaml:"dump_interval" hcl:"dump_interval"`

	// Report is a JSON file rewritten on every dump.
	Report   string `yaml:"report" hcl:"report"`
	Pcap     string `yaml:"pcap" hcl:"pcap"`
	PcapType string `yaml:"pcap_type" hcl:"pcap_type"`

	// History is the SQLite database receiving every dump.
	History string `yaml:"history" hcl:"history"`

	// Uplink is an mqtt://, tcp://, ssl:// or nats:// URL. The path selects the topic or subject.
	Uplink  string `yaml:"uplink" hcl:"uplink"`
	Metrics string `yaml:"metrics" hcl:"metrics"`
	Rpc     string `yaml:"rpc" hcl:"rpc"`
}

type Node struct {
	Id             int    `yaml:"id" hcl:"id"`
	Listen         string `yaml:"listen" hcl:"listen"`
	HopLimit       int    `yaml:"hop_limit" hcl:"hop_limit"`
	Root           string `yaml:"root" hcl:"root"`
	Parent         string `yaml:"parent" hcl:"parent"`
	ReportInterval string `yaml:"report_interval" hcl:"report_interval"`

	// PingInterval "0" disables liveness pings.
	PingInterval string `yaml:"ping_interval" hcl:"ping_interval"`
	Metrics      string `yaml:"metrics" hcl:"metrics"`
}

type Sim struct {
	Seed           int64     `yaml:"seed" hcl:"seed"`
	Plr            float64   `yaml:"plr" hcl:"plr"`
	RadioModel     string    `yaml:"radio_model" hcl:"radio_model"`
	ReportInterval string    `yaml:"report_interval" hcl:"report_interval"`
	PingInterval   string    `yaml:"ping_interval" hcl:"ping_interval"`
	Leaves         []SimLeaf `yaml:"leaves" hcl:"leaf"`

	// Kpi, if set, is the file the run's key performance indicators are written to on exit.
	Kpi string `yaml:"kpi" hcl:"kpi"`
}

// SimLeaf places a simulated node. Parent 0 attaches it directly to the coordinator.
type SimLeaf struct {
	Id     int `yaml:"id" hcl:"id"`
	Parent int `yaml:"parent" hcl:"parent"`
	X      int `yaml:"x" hcl:"x"`
	Y      int `yaml:"y" hcl:"y"`
	Z      int `yaml:"z" hcl:"z"`

	// The leaf fails for FailDuration at a random moment within every FailInterval. Empty means never.
	FailDuration string `yaml:"fail_duration" hcl:"fail_duration"`
	FailInterval string `yaml:"fail_interval" hcl:"fail_interval"`
}

// FailEvery returns the fail duration and interval of the leaf, zero if it never fails.
func (l *SimLeaf) FailEvery() (time.Duration, time.Duration) {
	if l.FailDuration == "" {
		return 0, 0
	}
	d, _ := parseInterval("fail_duration", l.FailDuration, true)
	itv, _ := parseInterval("fail_interval", l.FailInterval, true)
	return d, itv
}

func Default() *Config {
	return &Config{
		Role:     RoleCoordinator,
		LogLevel: DefaultLogLevel,
		Variant:  payload.VariantParent.String(),
		Port:     UdpPort,
		Coordinator: Coordinator{
			Listen:       "[::]:1234",
			HopLimit:     DefaultHopLimit,
			DumpInterval: DefaultDumpInterval,
			PcapType:     DefaultPcapType,
		},
		Node: Node{
			Listen:         "[::]:1234",
			HopLimit:       DefaultHopLimit,
			ReportInterval: DefaultReportInterval,
			PingInterval:   DefaultPingInterval,
		},
		Sim: Sim{
			RadioModel:     DefaultRadioModel,
			ReportInterval: "1s",
			PingInterval:   "500ms",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or HCL (.hcl) file over the defaults and validates the result.
func Load(fn string) (*Config, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", fn)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(fn)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".hcl":
		err = hcl.Decode(cfg, string(data))
	default:
		return nil, errors.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", fn)
	}

	if err = cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", fn)
	}
	return cfg, nil
}

// Validate checks the values that are used by the selected role.
func (cfg *Config) Validate() error {
	if _, err := cfg.PayloadVariant(); err != nil {
		return err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.Errorf("invalid port %d", cfg.Port)
	}
	for _, id := range cfg.Nodes {
		if id < 1 || id > 255 {
			return errors.Wrapf(ErrInvalidNodeId, "node id %d", id)
		}
	}

	switch cfg.Role {
	case RoleCoordinator:
		if _, err := parseInterval("dump_interval", cfg.Coordinator.DumpInterval, false); err != nil {
			return err
		}
		if cfg.Coordinator.HopLimit < 1 || cfg.Coordinator.HopLimit > 255 {
			return errors.Errorf("invalid hop_limit %d", cfg.Coordinator.HopLimit)
		}
	case RoleNode:
		return cfg.validateNode()
	case RoleSim:
		return cfg.validateSim()
	default:
		return errors.Errorf("unknown role %q", cfg.Role)
	}
	return nil
}

func (cfg *Config) validateNode() error {
	n := &cfg.Node
	if n.Id < 1 || n.Id > 255 {
		return errors.Wrapf(ErrInvalidNodeId, "node id %d", n.Id)
	}
	if n.Root != "" {
		if _, err := netip.ParseAddr(n.Root); err != nil {
			return errors.Wrap(err, "root")
		}
	}
	if n.Parent != "" {
		parent, err := netip.ParseAddr(n.Parent)
		if err != nil {
			return errors.Wrap(err, "parent")
		}
		// reported in the frame's IPv6 parent field
		if !parent.Is6() || parent.Is4In6() {
			return errors.Errorf("parent %s is not an IPv6 address", n.Parent)
		}
	}
	if n.HopLimit < 1 || n.HopLimit > 255 {
		return errors.Errorf("invalid hop_limit %d", n.HopLimit)
	}
	if _, err := parseInterval("report_interval", n.ReportInterval, false); err != nil {
		return err
	}
	_, err := parseInterval("ping_interval", n.PingInterval, true)
	return err
}

func (cfg *Config) validateSim() error {
	s := &cfg.Sim
	if s.Plr < 0 || s.Plr > 1 {
		return errors.Errorf("plr %v out of range [0, 1]", s.Plr)
	}
	if _, err := radiomodel.NewRadioModel(s.RadioModel, 0); err != nil {
		return err
	}
	if _, err := parseInterval("report_interval", s.ReportInterval, false); err != nil {
		return err
	}
	if _, err := parseInterval("ping_interval", s.PingInterval, true); err != nil {
		return err
	}
	if _, err := parseInterval("dump_interval", cfg.Coordinator.DumpInterval, false); err != nil {
		return err
	}

	seen := map[int]bool{}
	for _, l := range s.Leaves {
		if l.Id < 1 || l.Id > 255 {
			return errors.Wrapf(ErrInvalidNodeId, "leaf id %d", l.Id)
		}
		if seen[l.Id] {
			return errors.Errorf("duplicate leaf id %d", l.Id)
		}
		if l.FailDuration != "" {
			d, err := parseInterval("fail_duration", l.FailDuration, true)
			if err != nil {
				return err
			}
			itv, err := parseInterval("fail_interval", l.FailInterval, true)
			if err != nil {
				return err
			}
			if d > 0 && itv <= d {
				return errors.Errorf("leaf %d: fail_interval %v must exceed fail_duration %v", l.Id, itv, d)
			}
		}
		seen[l.Id] = true
	}
	for _, l := range s.Leaves {
		if l.Parent != 0 && !seen[l.Parent] {
			return errors.Errorf("leaf %d: unknown parent %d", l.Id, l.Parent)
		}
		if l.Parent == l.Id {
			return errors.Errorf("leaf %d is its own parent", l.Id)
		}
	}
	return nil
}

func (cfg *Config) PayloadVariant() (payload.Variant, error) {
	return payload.ParseVariant(cfg.Variant)
}

// Domain returns the node id domain. In the sim role without explicit nodes it is the set of leaves.
func (cfg *Config) Domain() NodeDomain {
	ids := make([]NodeId, 0, len(cfg.Nodes))
	for _, id := range cfg.Nodes {
		ids = append(ids, NodeId(id))
	}
	if len(ids) == 0 && cfg.Role == RoleSim {
		for _, l := range cfg.Sim.Leaves {
			ids = append(ids, NodeId(l.Id))
		}
	}
	if len(ids) == 0 {
		ids = DefaultNodeIds
	}
	return NewNodeDomain(ids)
}

func (c *Coordinator) DumpEvery() time.Duration {
	d, _ := parseInterval("dump_interval", c.DumpInterval, false)
	return d
}

func (n *Node) ReportEvery() time.Duration {
	d, _ := parseInterval("report_interval", n.ReportInterval, false)
	return d
}

func (n *Node) PingEvery() time.Duration {
	d, _ := parseInterval("ping_interval", n.PingInterval, true)
	return d
}

func (s *Sim) ReportEvery() time.Duration {
	d, _ := parseInterval("report_interval", s.ReportInterval, false)
	return d
}

func (s *Sim) PingEvery() time.Duration {
	d, _ := parseInterval("ping_interval", s.PingInterval, true)
	return d
}

func parseInterval(name string, s string, zeroOk bool) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", name)
	}
	if d < 0 || (d == 0 && !zeroOk) {
		return 0, errors.Errorf("invalid %s %v", name, d)
	}
	return d, nil
}
