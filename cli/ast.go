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

package cli

import (
	"strconv"

	"github.com/alecthomas/participle"
)

// noinspection GoStructTag
type Command struct {
	Counters *CountersCmd `  @@` //nolint
	Dump     *DumpCmd     `| @@` //nolint
	Exit     *ExitCmd     `| @@` //nolint
	Help     *HelpCmd     `| @@` //nolint
	Kpi      *KpiCmd      `| @@` //nolint
	Liveness *LivenessCmd `| @@` //nolint
	LogLevel *LogLevelCmd `| @@` //nolint
	Move     *MoveCmd     `| @@` //nolint
	Node     *NodeCmd     `| @@` //nolint
	Nodes    *NodesCmd    `| @@` //nolint
	Plr      *PlrCmd      `| @@` //nolint
}

// noinspection GoStructTag
type NodeSelector struct {
	Id int `@Int` //nolint
}

func (ns *NodeSelector) String() string {
	return strconv.Itoa(ns.Id)
}

// noinspection GoStructTag
type Coord struct {
	Neg *string `[ @"-" ]` //nolint
	Val int     `@Int`     //nolint
}

func (c *Coord) Int() int {
	if c.Neg != nil {
		return -c.Val
	}
	return c.Val
}

// noinspection GoStructTag
type CountersCmd struct {
	Cmd struct{} `"counters"` //nolint
}

// noinspection GoStructTag
type DumpCmd struct {
	Cmd struct{} `"dump"` //nolint
}

// noinspection GoStructTag
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

// noinspection GoStructTag
type HelpCmd struct {
	Cmd       struct{} `"help"`       //nolint
	HelpTopic string   `[ (@Ident) ]` //nolint
}

// noinspection GoStructTag
type KpiCmd struct {
	Cmd      struct{} `"kpi"`              //nolint
	Filename *string  `[ "save" @String ]` //nolint
}

// noinspection GoStructTag
type LivenessCmd struct {
	Cmd  struct{}      `"liveness"` //nolint
	Node *NodeSelector `[ @@ ]`     //nolint
}

// noinspection GoStructTag
type LogLevelCmd struct {
	Cmd   struct{} `"log"`                                                            //nolint
	Level string   `[@( "trace"|"debug"|"info"|"note"|"warn"|"error"|"crit"|"off" )]` //nolint
}

// noinspection GoStructTag
type MoveCmd struct {
	Cmd    struct{}     `"move"` //nolint
	Target NodeSelector `@@`     //nolint
	X      Coord        `@@`     //nolint
	Y      Coord        `@@`     //nolint
	Z      *Coord       `[ @@ ]` //nolint
}

// noinspection GoStructTag
type NodeCmd struct {
	Cmd      struct{}        `"node"`                    //nolint
	Node     NodeSelector    `@@`                        //nolint
	Action   string          `[ @( "fail" | "recover" )` //nolint
	FailTime *FailTimeParams `| @@ ]`                    //nolint
}

// noinspection GoStructTag
type FailTimeParams struct {
	Dummy        struct{} `"ft"`          //nolint
	FailDuration float64  `(@Int|@Float)` //nolint
	FailInterval float64  `(@Int|@Float)` //nolint
}

// noinspection GoStructTag
type NodesCmd struct {
	Cmd struct{} `"nodes"` //nolint
}

// noinspection GoStructTag
type PlrCmd struct {
	Cmd struct{} `"plr"`             //nolint
	Val *float64 `[ (@Int|@Float) ]` //nolint
}

var (
	commandParser = participle.MustBuild(&Command{})
)

func ParseBytes(b []byte, cmd *Command) error {
	err := commandParser.ParseBytes(b, cmd)
	return err
}
