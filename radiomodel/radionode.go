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

package radiomodel

import (
	"math"

	. "github.com/openthread/ot-sink/types"
)

const (
	defaultTxPowerDbm       DbValue = 0.0
	defaultRxSensitivityDbm DbValue = -100.0
)

// RadioNode is the radio status of a single simulated node.
type RadioNode struct {
	Id NodeId

	// TxPower is the transmit power in dBm.
	TxPower DbValue

	// RxSensitivity is the Rx sensitivity in dBm; weaker signals are never received.
	RxSensitivity DbValue

	// Node position in units.
	X, Y, Z float64
}

type RadioNodeConfig struct {
	X, Y, Z int
}

func NewRadioNode(nodeid NodeId, cfg *RadioNodeConfig) *RadioNode {
	return &RadioNode{
		Id:            nodeid,
		TxPower:       defaultTxPowerDbm,
		RxSensitivity: defaultRxSensitivityDbm,
		X:             float64(cfg.X),
		Y:             float64(cfg.Y),
		Z:             float64(cfg.Z),
	}
}

func (rn *RadioNode) SetNodePos(x, y, z int) {
	rn.X, rn.Y, rn.Z = float64(x), float64(y), float64(z)
}

// GetDistanceTo gets the distance to another RadioNode (in grid/pixel units).
func (rn *RadioNode) GetDistanceTo(other *RadioNode) (dist float64) {
	dx := other.X - rn.X
	dy := other.Y - rn.Y
	dz := other.Z - rn.Z
	dist = math.Sqrt(dx*dx + dy*dy + dz*dz)
	return
}
