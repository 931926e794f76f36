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

// Package prng hands out reproducible random sources derived from a single root seed.
package prng

import (
	"math/rand"
	"sync"
	"time"
)

type RandomSeed int64

var (
	mutex                    sync.Mutex
	newNodeRandSeedGenerator *rand.Rand
	newLinkRandSeedGenerator *rand.Rand
	unitRandGenerator        *rand.Rand
)

func init() {
	Init(0)
}

// Init initializes the prng package, either with a fixed PRNG seed (rootSeed != 0) or a 'random' time-based PRNG
// seed (if rootSeed == 0).
func Init(rootSeed int64) {
	if rootSeed == 0 {
		rootSeed = time.Now().UnixNano()
	}
	root := rand.New(rand.NewSource(rootSeed))

	mutex.Lock()
	defer mutex.Unlock()
	newNodeRandSeedGenerator = rand.New(rand.NewSource(root.Int63()))
	newLinkRandSeedGenerator = rand.New(rand.NewSource(root.Int63()))
	unitRandGenerator = rand.New(rand.NewSource(root.Int63()))
}

// NewNodeRandomSeed generates unique random-seeds for newly created nodes.
func NewNodeRandomSeed() RandomSeed {
	mutex.Lock()
	defer mutex.Unlock()
	return RandomSeed(newNodeRandSeedGenerator.Int63())
}

// NewLinkRandomSeed generates unique random-seeds for simulated links.
func NewLinkRandomSeed() RandomSeed {
	mutex.Lock()
	defer mutex.Unlock()
	return RandomSeed(newLinkRandSeedGenerator.Int63())
}

// NewUnitRandom generates a new random unit [0, 1) float, which can be used as a random probability.
func NewUnitRandom() float64 {
	mutex.Lock()
	defer mutex.Unlock()
	return unitRandGenerator.Float64()
}

// Source is a random source owned by a single goroutine.
type Source struct {
	*rand.Rand
}

// NewSource returns a Source seeded with seed.
func NewSource(seed RandomSeed) *Source {
	return &Source{rand.New(rand.NewSource(int64(seed)))}
}
