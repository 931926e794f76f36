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
	"math/rand"
	"sync"
)

// fadingModel computes a static shadow fading value per radio link. A symmetric link is assumed
// between transmitter and receiver, so reversing roles gives the same value.
// See https://en.wikipedia.org/wiki/Fading and 3GPP TR 38.901 V17.0.0, section 7.4.4.
type fadingModel struct {
	mutex     sync.Mutex
	rndSeed   int64
	shFadeMap map[int64]DbValue
}

func newFadingModel(seed int64) *fadingModel {
	return &fadingModel{
		rndSeed:   seed,
		shFadeMap: make(map[int64]DbValue, 64),
	}
}

func (sf *fadingModel) computeFading(src *RadioNode, dst *RadioNode, params *RadioModelParams) DbValue {
	if params.ShadowFadingSigmaDb <= 0 {
		return 0
	}

	seed := sf.rndSeed + calcLinkUID(src, dst)
	sf.mutex.Lock()
	defer sf.mutex.Unlock()
	if v, ok := sf.shFadeMap[seed]; ok {
		return v
	}
	v := rand.New(rand.NewSource(seed)).NormFloat64() * params.ShadowFadingSigmaDb
	sf.shFadeMap[seed] = v
	return v
}

// calcLinkUID returns an order-independent identifier for the link between two nodes.
func calcLinkUID(a, b *RadioNode) int64 {
	lo, hi := int64(a.Id), int64(b.Id)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo<<8 | hi
}
