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

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevelString(t *testing.T) {
	for _, s := range []string{"trace", "debug", "info", "note", "warn", "crit", "off"} {
		lv, err := ParseLevelString(s)
		assert.Nil(t, err)
		assert.Equal(t, s, GetLevelString(lv))
	}

	lv, err := ParseLevelString("W")
	assert.Nil(t, err)
	assert.Equal(t, WarnLevel, lv)

	lv, err = ParseLevelString("verbose")
	assert.NotNil(t, err)
	assert.Equal(t, DefaultLevel, lv)
}

func TestEnabled(t *testing.T) {
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(WarnLevel)
	assert.True(t, Enabled(ErrorLevel))
	assert.True(t, Enabled(WarnLevel))
	assert.False(t, Enabled(InfoLevel))

	SetLevel(OffLevel)
	assert.False(t, Enabled(ErrorLevel))
}

func TestNodeLoggerFile(t *testing.T) {
	dir := t.TempDir()
	nl := GetNodeLogger(42)
	assert.Same(t, nl, GetNodeLogger(42))

	assert.Nil(t, nl.EnableFile(dir))
	nl.SetDisplayLevel(OffLevel)
	nl.Infof("Sent data with TX count = %d", 7)
	nl.Tracef("not written")
	nl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "node_42.log"))
	assert.Nil(t, err)
	assert.True(t, strings.Contains(string(data), "Sent data with TX count = 7"))
	assert.False(t, strings.Contains(string(data), "not written"))
}

func TestSetOutput(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "otsink.log")
	assert.Nil(t, SetOutput([]string{fn}))
	defer func() {
		assert.Nil(t, SetOutput([]string{"stderr"}))
	}()

	prev := GetLevel()
	defer SetLevel(prev)
	SetLevel(InfoLevel)
	Infof("dump every %d s", 5)
	Sync()

	data, err := os.ReadFile(fn)
	assert.Nil(t, err)
	assert.Contains(t, string(data), "dump every 5 s")
}

func TestSetOutputBadPath(t *testing.T) {
	assert.NotNil(t, SetOutput([]string{filepath.Join(t.TempDir(), "missing", "x.log")}))
}

func TestAssertPanics(t *testing.T) {
	assert.Panics(t, func() {
		AssertTrue(false)
	})
	assert.NotPanics(t, func() {
		AssertEqual(1, 1)
	})
}
