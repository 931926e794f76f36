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

package simulation

import (
	"net/netip"
	"time"

	"github.com/openthread/ot-sink/payload"
	"github.com/openthread/ot-sink/radiomodel"
	. "github.com/openthread/ot-sink/types"
)

const (
	DefaultReportInterval = time.Second
	DefaultPingInterval   = 500 * time.Millisecond
	DefaultDumpInterval   = 5 * time.Second
)

var DefaultPrefix = netip.MustParsePrefix("fd00:db8::/64")

type LeafConfig struct {
	Id NodeId

	// Parent 0 attaches the leaf directly to the coordinator.
	Parent   NodeId
	X, Y, Z  int
	FailTime FailTime
}

type Config struct {
	Seed           int64
	Plr            float64
	RadioModel     string
	Variant        payload.Variant
	Prefix         netip.Prefix
	DumpInterval   time.Duration
	ReportInterval time.Duration
	PingInterval   time.Duration

	// Domain of node ids accepted by the coordinator. Empty means the ids of Leaves.
	Domain  []NodeId
	RootPos radiomodel.RadioNodeConfig
	Leaves  []LeafConfig
}

func DefaultConfig() *Config {
	return &Config{
		RadioModel:     radiomodel.ModelItu,
		Variant:        payload.VariantExtended,
		Prefix:         DefaultPrefix,
		DumpInterval:   DefaultDumpInterval,
		ReportInterval: DefaultReportInterval,
		PingInterval:   DefaultPingInterval,
	}
}

// DefaultLeaves places the default node ids in a row next to the coordinator. Node 171 is
// attached through node 88.
func DefaultLeaves() []LeafConfig {
	return []LeafConfig{
		{Id: 4, X: 20},
		{Id: 15, Y: 20},
		{Id: 88, X: -20},
		{Id: 171, Parent: 88, X: -40},
	}
}
