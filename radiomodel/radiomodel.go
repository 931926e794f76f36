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

// Package radiomodel decides whether a datagram crosses a simulated radio link and at what RSSI.
package radiomodel

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/prng"
	. "github.com/openthread/ot-sink/types"
)

// DbValue is a power or gain in dB or dBm.
type DbValue = float64

const (
	RssiMax DbValue = 126.0
	RssiMin DbValue = -126.0
)

const (
	ModelItu     = "itu"
	Model3gpp    = "3gpp"
	ModelOutdoor = "outdoor"
)

// RadioModel computes link budgets between radio nodes.
type RadioModel struct {
	name   string
	params *RadioModelParams
	fading *fadingModel
}

// NewRadioModel creates the named model. Fading values are drawn from seed.
func NewRadioModel(name string, seed prng.RandomSeed) (*RadioModel, error) {
	params := newRadioModelParams()
	switch strings.ToLower(name) {
	case ModelItu, "":
		name = ModelItu
		setIndoorModelParamsItu(params)
	case Model3gpp:
		setIndoorModelParams3gpp(params)
	case ModelOutdoor:
		setOutdoorModelParams(params)
	default:
		return nil, errors.Errorf("unknown radio model: %s", name)
	}
	return &RadioModel{
		name:   strings.ToLower(name),
		params: params,
		fading: newFadingModel(int64(seed)),
	}, nil
}

func (rm *RadioModel) Name() string {
	return rm.name
}

func (rm *RadioModel) Params() RadioModelParams {
	return *rm.params
}

// ComputeRssi returns the signal strength at dst of a transmission by src, in dBm.
func (rm *RadioModel) ComputeRssi(src, dst *RadioNode) DbValue {
	dist := src.GetDistanceTo(dst)
	rssi := computeIndoorRssi(dist, src.TxPower, rm.params)
	rssi -= rm.fading.computeFading(src, dst, rm.params)
	return rssi
}

// LinkQuality returns the RSSI at dst and the probability that a datagram of payloadLen bytes from src
// is received.
func (rm *RadioModel) LinkQuality(src, dst *RadioNode, payloadLen int) (Rssi, float64) {
	rssi := rm.ComputeRssi(src, dst)
	if rssi < dst.RxSensitivity {
		return clipRssi(rssi), 0
	}
	snr := rssi - rm.params.NoiseFloorDbm
	if snr < rm.params.SnrMinThresholdDb {
		return clipRssi(rssi), 0
	}
	return clipRssi(rssi), computePacketSuccessRate(snr, payloadLen)
}

// clipRssi clips the RSSI value (in dBm) to the int8 range reported to nodes.
func clipRssi(rssi DbValue) Rssi {
	if rssi > RssiMax {
		rssi = RssiMax
	} else if rssi < RssiMin {
		return RssiMinusInfinity
	}
	return Rssi(math.Round(rssi))
}
