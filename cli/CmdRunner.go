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
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-sink/cadence"
	"github.com/openthread/ot-sink/leaf"
	"github.com/openthread/ot-sink/liveness"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/nodestats"
	"github.com/openthread/ot-sink/progctx"
	"github.com/openthread/ot-sink/simulation"
	"github.com/openthread/ot-sink/sink"
	. "github.com/openthread/ot-sink/types"
)

const (
	Prompt = "> "

	loopCallTimeout = 3 * time.Second
)

var (
	errNoCoordinator = errors.New("no coordinator in this process")
	errNoSimulation  = errors.New("command only available in a simulation")
)

type CommandContext struct {
	context.Context
	*Command
	rt     *CmdRunner
	err    error
	output io.Writer
}

func (cc *CommandContext) outputStr(msg string) {
	_, _ = fmt.Fprint(cc.output, msg)
}

func (cc *CommandContext) outputf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cc.output, format, args...)
}

func (cc *CommandContext) errorf(format string, args ...interface{}) {
	cc.error(errors.Errorf(format, args...))
}

func (cc *CommandContext) error(err error) {
	if err != nil {
		if cc.err != nil { // if previous error, print it now and keep the last.
			cc.outputf("Error: %s\n", cc.err)
		}
		cc.err = err
	}
}

// Err returns the last error that occurred during command execution.
func (cc *CommandContext) Err() error {
	return cc.err
}

func (cc *CommandContext) outputItemsAsYaml(items interface{}) {
	var itemsYaml yaml.Node

	err := itemsYaml.Encode(items)
	logger.PanicIfError(err)

	for _, content := range itemsYaml.Content {
		content.Style = yaml.FlowStyle
	}

	data, err := yaml.Marshal(&itemsYaml)
	logger.PanicIfError(err)

	_, err = cc.output.Write(data)
	logger.PanicIfError(err)
}

// Backend is what the console operates on. Any of the parts may be nil, depending on the process role.
type Backend struct {
	Coordinator *sink.Coordinator
	Leaves      []*leaf.Node
	Sim         *simulation.Simulation
}

// NewSimBackend returns a backend for all parts of a simulation.
func NewSimBackend(sim *simulation.Simulation) Backend {
	be := Backend{
		Coordinator: sim.Coordinator(),
		Sim:         sim,
	}
	for _, id := range sim.GetNodes() {
		n, _ := sim.Node(id)
		be.Leaves = append(be.Leaves, n)
	}
	return be
}

type CmdRunner struct {
	ctx  *progctx.ProgCtx
	be   Backend
	help Help
}

func NewCmdRunner(ctx *progctx.ProgCtx, be Backend) *CmdRunner {
	return &CmdRunner{
		ctx:  ctx,
		be:   be,
		help: newHelp(),
	}
}

func (rt *CmdRunner) RunCommand(cmdline string, output io.Writer) error {
	if rt.ctx.Err() == nil {
		cmd := Command{}

		if err := ParseBytes([]byte(cmdline), &cmd); err != nil {
			if _, err := fmt.Fprintf(output, "Error: %v\n", err); err != nil {
				return err
			}
		} else {
			rt.execute(&cmd, output)
		}
	}
	return rt.ctx.Err()
}

func (rt *CmdRunner) HandleCommand(cmdline string, output io.Writer) error {
	return rt.RunCommand(cmdline, output)
}

func (rt *CmdRunner) GetPrompt() string {
	return Prompt
}

func (rt *CmdRunner) execute(cmd *Command, output io.Writer) {
	cc := &CommandContext{
		Context: rt.ctx,
		Command: cmd,
		rt:      rt,
		output:  output,
	}

	defer func() {
		if cc.Err() != nil {
			cc.outputf("Error: %v\n", cc.Err())
		} else {
			cc.outputf("Done\n")
		}
	}()

	defer func() {
		rerr := recover()

		if rerr != nil {
			if err, ok := rerr.(error); ok {
				cc.err = errors.Wrapf(err, "panic: %v", err)
			} else {
				cc.err = errors.Errorf("panic: %v", rerr)
			}
		}
	}()

	if cmd.Counters != nil {
		rt.executeCounters(cc)
	} else if cmd.Dump != nil {
		rt.executeDump(cc)
	} else if cmd.Exit != nil {
		rt.executeExit(cc)
	} else if cmd.Help != nil {
		rt.executeHelp(cc, cmd.Help)
	} else if cmd.Kpi != nil {
		rt.executeKpi(cc, cmd.Kpi)
	} else if cmd.Liveness != nil {
		rt.executeLiveness(cc, cmd.Liveness)
	} else if cmd.LogLevel != nil {
		rt.executeLogLevel(cc, cmd.LogLevel)
	} else if cmd.Move != nil {
		rt.executeMoveNode(cc, cmd.Move)
	} else if cmd.Node != nil {
		rt.executeNode(cc, cmd.Node)
	} else if cmd.Nodes != nil {
		rt.executeLsNodes(cc)
	} else if cmd.Plr != nil {
		rt.executePlr(cc, cmd.Plr)
	} else {
		logger.Panicf("unimplemented command: %#v", cmd)
	}
}

// postAsyncWait runs f on loop and waits until it has run. Counters owned by a loop are only read this way.
func (rt *CmdRunner) postAsyncWait(cc *CommandContext, loop *cadence.Loop, f func()) bool {
	done := make(chan struct{})
	if !loop.Post(func() {
		defer close(done)
		f()
	}) {
		cc.errorf("%s is not running", loop.Name())
		return false
	}

	select {
	case <-done:
		return true
	case <-loop.Done():
		cc.errorf("%s stopped", loop.Name())
	case <-time.After(loopCallTimeout):
		cc.errorf("%s did not respond", loop.Name())
	}
	return false
}

func (rt *CmdRunner) leaf(id NodeId) *leaf.Node {
	for _, n := range rt.be.Leaves {
		if n.Id() == id {
			return n
		}
	}
	return nil
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func getNodeId(ns NodeSelector) (NodeId, error) {
	if ns.Id <= int(InvalidNodeId) || ns.Id > 0xff {
		return InvalidNodeId, errors.Wrapf(ErrInvalidNodeId, "node %d", ns.Id)
	}
	return NodeId(ns.Id), nil
}

func (rt *CmdRunner) outputCounters(cc *CommandContext, title string, counters interface{}) {
	cc.outputf("%s\n", title)
	countersVal := reflect.ValueOf(counters)
	countersTyp := reflect.TypeOf(counters)
	for i := 0; i < countersVal.NumField(); i++ {
		fname := countersTyp.Field(i).Name
		fval := countersVal.Field(i)
		cc.outputf("  %-38s %v\n", fname, fval.Uint())
	}
}

func (rt *CmdRunner) executeCounters(cc *CommandContext) {
	if c := rt.be.Coordinator; c != nil {
		var counters sink.Counters
		if !rt.postAsyncWait(cc, c.Loop(), func() { counters = c.Counters }) {
			return
		}
		rt.outputCounters(cc, "coordinator", counters)
		rt.outputCounters(cc, "coordinator loop", c.Loop().Counters())
	}

	for _, n := range rt.be.Leaves {
		var counters leaf.Counters
		if !rt.postAsyncWait(cc, n.Loop(), func() { counters = n.Counters }) {
			return
		}
		rt.outputCounters(cc, fmt.Sprintf("node %d", n.Id()), counters)
	}

	if rt.be.Sim != nil {
		rt.outputCounters(cc, "mesh", rt.be.Sim.Mesh().Counters())
	}
}

func (rt *CmdRunner) executeDump(cc *CommandContext) {
	if rt.be.Coordinator == nil {
		cc.error(errNoCoordinator)
		return
	}
	for _, line := range sink.RenderDump(rt.be.Coordinator.Snapshot()) {
		cc.outputf("%s\n", line)
	}
}

func (rt *CmdRunner) executeExit(cc *CommandContext) {
	rt.ctx.Cancel("exit")
}

func (rt *CmdRunner) executeHelp(cc *CommandContext, cmd *HelpCmd) {
	if len(cmd.HelpTopic) > 0 {
		cc.outputStr(rt.help.outputCommandHelp(cmd.HelpTopic))
	} else {
		cc.outputStr(rt.help.outputGeneralHelp())
	}
}

func (rt *CmdRunner) executeKpi(cc *CommandContext, cmd *KpiCmd) {
	if rt.be.Sim == nil {
		cc.error(errNoSimulation)
		return
	}
	if cmd.Filename != nil {
		cc.error(rt.be.Sim.Kpi().SaveFile(*cmd.Filename))
		return
	}

	kpi := rt.be.Sim.Kpi().Current()
	cc.outputf("run %s, %.1f s\n", kpi.RunId, kpi.Time.PeriodSec)
	cc.outputf("mesh sent=%d delivered=%d (%.1f%%) lost_link=%d lost_plr=%d no_route=%d plr=%v\n",
		kpi.Mesh.Sent, kpi.Mesh.Delivered, kpi.Mesh.DeliveryPct, kpi.Mesh.LostLink, kpi.Mesh.LostPlr,
		kpi.Mesh.NoRoute, kpi.Mesh.ConfiguredPlr)
	for _, id := range rt.be.Sim.GetNodes() {
		kn, ok := kpi.Nodes[id]
		if !ok {
			continue
		}
		cc.outputf("id=%d\ttx=%d\trx=%d\tprr=%d%%\tloss=%.1f%%\trtt_mean=%.1fms\n", id, kn.TxCount, kn.RxCount,
			kn.Prr, kn.LossPct, kn.Rtt.Mean)
	}
}

type livenessItem struct {
	Node    NodeId           `yaml:"node"`
	Phase   string           `yaml:"phase"`
	Sent    uint32           `yaml:"ping_sent"`
	Pongs   uint32           `yaml:"pong_received"`
	LossPct float64          `yaml:"loss_percent"`
	LastRtt uint16           `yaml:"last_rtt_ms"`
	Rtt     liveness.Summary `yaml:"rtt_ms"`
}

func (rt *CmdRunner) executeLiveness(cc *CommandContext, cmd *LivenessCmd) {
	nodes := rt.be.Leaves
	if cmd.Node != nil {
		id, err := getNodeId(*cmd.Node)
		if err != nil {
			cc.error(err)
			return
		}
		n := rt.leaf(id)
		if n == nil {
			cc.errorf("node %d not found", id)
			return
		}
		nodes = []*leaf.Node{n}
	}
	if len(nodes) == 0 {
		cc.errorf("no leaf nodes in this process")
		return
	}

	items := make([]livenessItem, 0, len(nodes))
	for _, n := range nodes {
		est := n.Liveness()
		st := est.State()
		items = append(items, livenessItem{
			Node:    n.Id(),
			Phase:   st.Phase.String(),
			Sent:    st.PingSentCount,
			Pongs:   st.PongReceivedCount,
			LossPct: st.LossPct(),
			LastRtt: st.LastRttMs,
			Rtt:     est.Summary(),
		})
	}
	cc.outputItemsAsYaml(items)
}

func (rt *CmdRunner) executeLogLevel(cc *CommandContext, cmd *LogLevelCmd) {
	if cmd.Level == "" {
		cc.outputf("%v\n", logger.GetLevelString(logger.GetLevel()))
		return
	}
	level, err := logger.ParseLevelString(cmd.Level)
	if err != nil {
		cc.error(err)
		return
	}
	logger.SetLevel(level)
}

func (rt *CmdRunner) executeMoveNode(cc *CommandContext, cmd *MoveCmd) {
	if rt.be.Sim == nil {
		cc.error(errNoSimulation)
		return
	}
	id, err := getNodeId(cmd.Target)
	if err != nil {
		cc.error(err)
		return
	}
	z := 0
	if cmd.Z != nil {
		z = cmd.Z.Int()
	}
	cc.error(rt.be.Sim.MoveNodeTo(id, cmd.X.Int(), cmd.Y.Int(), z))
}

func (rt *CmdRunner) executeNode(cc *CommandContext, cmd *NodeCmd) {
	id, err := getNodeId(cmd.Node)
	if err != nil {
		cc.error(err)
		return
	}

	switch cmd.Action {
	case "fail", "recover":
		if rt.be.Sim == nil {
			cc.error(errNoSimulation)
			return
		}
		cc.error(rt.be.Sim.SetNodeFailed(id, cmd.Action == "fail"))
		return
	}
	if cmd.FailTime != nil {
		if rt.be.Sim == nil {
			cc.error(errNoSimulation)
			return
		}
		cc.error(rt.be.Sim.SetNodeFailTime(id, simulation.FailTime{
			FailDuration: secondsToDuration(cmd.FailTime.FailDuration),
			FailInterval: secondsToDuration(cmd.FailTime.FailInterval),
		}))
		return
	}

	found := false
	if c := rt.be.Coordinator; c != nil {
		if e, ok := c.Table().Get(id); ok {
			found = true
			cc.outputf("%s\n", formatEntry(&e))
			if e.PingSentCount > 0 || e.PongReceivedCount > 0 {
				cc.outputf("reported liveness: pings=%d pongs=%d rtt=%dms\n", e.PingSentCount,
					e.PongReceivedCount, e.LastRttMs)
			}
		} else if c.Table().Domain().Contains(id) {
			found = true
			cc.outputf("id=%d\tno reports\n", id)
		}
	}

	if n := rt.leaf(id); n != nil {
		found = true
		var seq uint16
		if !rt.postAsyncWait(cc, n.Loop(), func() { seq = n.TxSequence() }) {
			return
		}
		cc.outputf("local addr=%s\ttx_sequence=%d\n", n.LocalAddr(), seq)
		if rt.be.Sim != nil {
			cc.outputf("failed=%v\n", rt.be.Sim.IsNodeFailed(id))
			if ft := rt.be.Sim.NodeFailTime(id); ft.CanFail() {
				cc.outputf("fail time: %v every %v\n", ft.FailDuration, ft.FailInterval)
			}
		}
	}

	if !found {
		cc.errorf("node %d not found", id)
	}
}

func (rt *CmdRunner) executeLsNodes(cc *CommandContext) {
	if c := rt.be.Coordinator; c != nil {
		for _, id := range c.Table().Domain().Ids() {
			line := fmt.Sprintf("id=%d\tno reports", id)
			if e, ok := c.Table().Get(id); ok {
				line = formatEntry(&e)
			}
			if rt.be.Sim != nil {
				line += fmt.Sprintf("\tfailed=%v", rt.be.Sim.IsNodeFailed(id))
			}
			cc.outputf("%s\n", line)
		}
		return
	}

	for _, n := range rt.be.Leaves {
		var seq uint16
		if !rt.postAsyncWait(cc, n.Loop(), func() { seq = n.TxSequence() }) {
			return
		}
		cc.outputf("id=%d\taddr=%s\ttx_sequence=%d\n", n.Id(), n.LocalAddr(), seq)
	}
}

func (rt *CmdRunner) executePlr(cc *CommandContext, cmd *PlrCmd) {
	if rt.be.Sim == nil {
		cc.error(errNoSimulation)
		return
	}
	if cmd.Val != nil {
		if err := rt.be.Sim.SetPlr(*cmd.Val); err != nil {
			cc.error(err)
			return
		}
	}
	cc.outputf("%v\n", rt.be.Sim.Mesh().Plr())
}

func formatEntry(e *nodestats.Entry) string {
	return fmt.Sprintf("id=%d\taddr=%s\tparent=%s\ttx=%d\trx=%d\tprr=%d%%\trssi=%d\ttemp=%dC", e.NodeId,
		e.NodeAddress, parentString(e), e.TxCount, e.RxCount, e.DisplayPrr(), e.LastRssi, e.LastTemperature)
}

func parentString(e *nodestats.Entry) string {
	if e.ViaRoot() {
		return "root"
	}
	return e.ParentAddress.String()
}
