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

package otsink_main

import (
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openthread/ot-sink/cli"
	"github.com/openthread/ot-sink/config"
	"github.com/openthread/ot-sink/history"
	"github.com/openthread/ot-sink/leaf"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/metrics"
	"github.com/openthread/ot-sink/pcap"
	"github.com/openthread/ot-sink/prng"
	"github.com/openthread/ot-sink/progctx"
	"github.com/openthread/ot-sink/routing"
	"github.com/openthread/ot-sink/rpc"
	"github.com/openthread/ot-sink/simulation"
	"github.com/openthread/ot-sink/sink"
	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uplink"
	"github.com/openthread/ot-sink/uptime"
)

type MainArgs struct {
	ConfigFile string
	Role       string
	LogLevel   string
	LogDir     string
	Variant    string
	Nodes      string
	Listen     string
	Console    bool
	NodeId     int
	Root       string
	Parent     string
	Seed       int64
	Report     string
	Pcap       string
	History    string
	Uplink     string
	Metrics    string
	Rpc        string
}

var (
	args MainArgs
)

func parseArgs() {
	flag.StringVar(&args.ConfigFile, "config", "", "load configuration from a YAML (.yaml, .yml) or HCL (.hcl) file")
	flag.StringVar(&args.Role, "role", config.RoleCoordinator, "process role: coordinator, node or sim")
	flag.StringVar(&args.LogLevel, "log", config.DefaultLogLevel, "set logging level: trace, debug, info, note, warn, error, off")
	flag.StringVar(&args.LogDir, "log-dir", "", "write the program log, one log file per node and the console history into this directory")
	flag.StringVar(&args.Variant, "variant", "", "payload variant: basic, parent or extended")
	flag.StringVar(&args.Nodes, "nodes", "", "comma separated node ids accepted by the coordinator")
	flag.StringVar(&args.Listen, "listen", "", "UDP listen address, e.g. [::]:1234")
	flag.BoolVar(&args.Console, "console", false, "run the interactive console")
	flag.IntVar(&args.NodeId, "id", 0, "node id (node role)")
	flag.StringVar(&args.Root, "root", "", "coordinator IPv6 address (node role)")
	flag.StringVar(&args.Parent, "parent", "", "parent IPv6 address (node role)")
	flag.Int64Var(&args.Seed, "seed", 0, "random seed (sim role), 0 picks a random seed")
	flag.StringVar(&args.Report, "report", "", "write the latest snapshot as JSON to this file")
	flag.StringVar(&args.Pcap, "pcap", "", "capture received datagrams to this PCAP file")
	flag.StringVar(&args.History, "history", "", "keep snapshot history in this SQLite database")
	flag.StringVar(&args.Uplink, "uplink", "", "publish snapshots to an MQTT (tcp://, ssl://, ws://) or NATS (nats://) server")
	flag.StringVar(&args.Metrics, "metrics", "", "serve Prometheus metrics on this TCP address")
	flag.StringVar(&args.Rpc, "rpc", "", "serve the gRPC query service on this TCP address")

	flag.Parse()
}

// loadConfig reads the config file, if any, and applies the flags that were set on the command line over it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if args.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(args.ConfigFile); err != nil {
			return nil, err
		}
	}

	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = args.Role
		case "log":
			cfg.LogLevel = args.LogLevel
		case "log-dir":
			cfg.LogDir = args.LogDir
		case "variant":
			cfg.Variant = args.Variant
		case "nodes":
			cfg.Nodes, err = parseNodeList(args.Nodes)
		case "listen":
			cfg.Coordinator.Listen = args.Listen
			cfg.Node.Listen = args.Listen
		case "console":
			cfg.Console = args.Console
		case "id":
			cfg.Node.Id = args.NodeId
		case "root":
			cfg.Node.Root = args.Root
		case "parent":
			cfg.Node.Parent = args.Parent
		case "seed":
			cfg.Sim.Seed = args.Seed
		case "report":
			cfg.Coordinator.Report = args.Report
		case "pcap":
			cfg.Coordinator.Pcap = args.Pcap
		case "history":
			cfg.Coordinator.History = args.History
		case "uplink":
			cfg.Coordinator.Uplink = args.Uplink
		case "metrics":
			cfg.Coordinator.Metrics = args.Metrics
			cfg.Node.Metrics = args.Metrics
		case "rpc":
			cfg.Coordinator.Rpc = args.Rpc
		}
	})
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func parseNodeList(s string) ([]int, error) {
	var ids []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid node id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// app holds what the selected role started, and what must be closed after all goroutines ended.
type app struct {
	ctx     *progctx.ProgCtx
	cfg     *config.Config
	backend cli.Backend
	sim     *simulation.Simulation
	closers []func()
}

func (a *app) onExit(f func()) {
	a.closers = append(a.closers, f)
}

func Main(ctx *progctx.ProgCtx, cliOptions *cli.CliOptions) {
	parseArgs()
	cfg, err := loadConfig()
	logger.FatalIfError(err)

	level, err := logger.ParseLevelString(cfg.LogLevel)
	logger.FatalIfError(err)
	logger.SetLevel(level)

	handleSignals(ctx)

	a := &app{ctx: ctx, cfg: cfg}
	if cfg.LogDir != "" {
		logger.FatalIfError(a.enableNodeLogFiles())
	}

	switch cfg.Role {
	case config.RoleCoordinator:
		err = a.startCoordinator()
	case config.RoleNode:
		err = a.startNode()
	case config.RoleSim:
		err = a.startSimulation()
	}
	if err != nil {
		ctx.Cancel(errors.Wrapf(err, "start %s", cfg.Role))
	} else if cfg.Console {
		a.startConsole(cliOptions)
	}

	<-ctx.Done()
	logger.Debugf("waiting for otsink to stop gracefully ...")
	ctx.Wait()
	a.close()
	logger.Sync()
}

func (a *app) close() {
	if a.sim != nil && a.cfg.Sim.Kpi != "" {
		if err := a.sim.Kpi().SaveFile(a.cfg.Sim.Kpi); err != nil {
			logger.Errorf("%v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	logger.CloseNodeLoggers()
}

func (a *app) enableNodeLogFiles() error {
	if err := os.MkdirAll(a.cfg.LogDir, 0755); err != nil {
		return errors.Wrapf(err, "create log dir %s", a.cfg.LogDir)
	}
	if err := logger.SetOutput([]string{"stderr", filepath.Join(a.cfg.LogDir, "otsink.log")}); err != nil {
		return errors.Wrapf(err, "open program log")
	}
	ids := a.cfg.Domain().Ids()
	if a.cfg.Role == config.RoleNode {
		ids = []NodeId{NodeId(a.cfg.Node.Id)}
	}
	for _, id := range ids {
		if err := logger.GetNodeLogger(id).EnableFile(a.cfg.LogDir); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) startConsole(cliOptions *cli.CliOptions) {
	rt := cli.NewCmdRunner(a.ctx, a.backend)
	opts := cli.DefaultCliOptions()
	if cliOptions != nil {
		*opts = *cliOptions
	}
	if opts.HistoryFile == "" && a.cfg.LogDir != "" {
		opts.HistoryFile = filepath.Join(a.cfg.LogDir, "otsink_history")
	}
	logger.SetStdoutCallback(cli.Cli)
	a.onExit(cli.Cli.Stop)

	go func() {
		err := cli.Cli.Run(rt, opts)
		if err != nil && a.ctx.Err() == nil {
			a.ctx.Cancel(errors.Wrapf(err, "console exit"))
		} else {
			a.ctx.Cancel("console exit")
		}
	}()
}

func (a *app) startCoordinator() error {
	variant, _ := a.cfg.PayloadVariant()
	conn, err := transport.ListenUDP(a.cfg.Coordinator.Listen, a.cfg.Coordinator.HopLimit)
	if err != nil {
		return err
	}

	ccfg := sink.DefaultConfig()
	ccfg.Domain = a.cfg.Domain()
	ccfg.Variant = variant
	ccfg.DumpInterval = a.cfg.Coordinator.DumpEvery()
	clock := uptime.NewMonotonic(DefaultTicksPerSecond)
	c := sink.NewCoordinator(ccfg, conn, clock)
	if err = a.addSinks(c, clock); err != nil {
		_ = conn.Close()
		return err
	}

	a.backend = cli.Backend{Coordinator: c}
	a.ctx.Go("coordinator", func() error {
		c.Run(a.ctx)
		return nil
	})
	logger.Infof("coordinator %s listening on %s, nodes %v", c.RunId(), conn.LocalAddr(), ccfg.Domain.Ids())
	return nil
}

// addSinks attaches the optional outputs configured for the coordinator.
func (a *app) addSinks(c *sink.Coordinator, clock uptime.Clock) error {
	cc := &a.cfg.Coordinator

	if cc.Report != "" {
		c.AddSnapshotSink(sink.NewReportFile(cc.Report))
	}

	if frameType := pcap.ParseFrameTypeStr(cc.PcapType); cc.Pcap != "" && frameType != pcap.FrameTypeOff {
		pf, err := pcap.NewFile(cc.Pcap, frameType, clock)
		if err != nil {
			return errors.Wrapf(err, "pcap %s", cc.Pcap)
		}
		c.SetCapture(pf)
		a.onExit(func() {
			logger.Debugf("pcap %s: %d packets", cc.Pcap, pf.Count())
			_ = pf.Close()
		})
	}

	if cc.History != "" {
		store, err := history.Open(cc.History)
		if err != nil {
			return err
		}
		c.AddSnapshotSink(store)
		a.onExit(func() {
			_ = store.Close()
		})
	}

	if cc.Uplink != "" {
		u, err := uplink.Dial(cc.Uplink, fmt.Sprintf("otsink-%s", c.RunId()[:8]))
		if err != nil {
			return err
		}
		c.AddSnapshotSink(u)
		a.onExit(u.Close)
	}

	if cc.Metrics != "" {
		reg := prometheus.NewRegistry()
		c.AddSnapshotSink(metrics.NewCoordinatorMetrics(reg))
		a.ctx.Go("metrics", func() error {
			return metrics.ListenAndServe(a.ctx, cc.Metrics, reg)
		})
	}

	if cc.Rpc != "" {
		ln, err := net.Listen("tcp", cc.Rpc)
		if err != nil {
			return errors.Wrapf(err, "rpc listen %s", cc.Rpc)
		}
		a.ctx.Go("rpc", func() error {
			return rpc.Serve(a.ctx, ln, c)
		})
	}
	return nil
}

func (a *app) startNode() error {
	nc := &a.cfg.Node
	id := NodeId(nc.Id)
	variant, _ := a.cfg.PayloadVariant()

	conn, err := transport.ListenUDP(nc.Listen, nc.HopLimit)
	if err != nil {
		return err
	}

	lcfg := leaf.DefaultConfig(id)
	lcfg.Variant = variant
	lcfg.ReportInterval = nc.ReportEvery()
	lcfg.PingInterval = nc.PingEvery()
	lcfg.RootPort = uint16(a.cfg.Port)

	resolver := routing.NewStatic(parseOptionalAddr(nc.Root), parseOptionalAddr(nc.Parent))
	n := leaf.NewNode(lcfg, conn, uptime.NewMonotonic(DefaultTicksPerSecond), resolver,
		leaf.NewRandomSensor(prng.NewNodeRandomSeed()))

	if nc.Metrics != "" {
		reg := prometheus.NewRegistry()
		if err = metrics.RegisterNode(reg, id, n.Liveness()); err != nil {
			_ = conn.Close()
			return err
		}
		a.ctx.Go("metrics", func() error {
			return metrics.ListenAndServe(a.ctx, nc.Metrics, reg)
		})
	}

	a.backend = cli.Backend{Leaves: []*leaf.Node{n}}
	a.ctx.Go("node", func() error {
		n.Run(a.ctx)
		return nil
	})
	logger.Infof("node %d listening on %s, root %q parent %q", id, conn.LocalAddr(), nc.Root, nc.Parent)
	return nil
}

// parseOptionalAddr returns the zero Addr for an empty string. The config was validated before.
func parseOptionalAddr(s string) netip.Addr {
	if s == "" {
		return netip.Addr{}
	}
	addr, _ := netip.ParseAddr(s)
	return addr
}

func (a *app) startSimulation() error {
	sc := &a.cfg.Sim
	variant, _ := a.cfg.PayloadVariant()

	simcfg := simulation.DefaultConfig()
	simcfg.Seed = sc.Seed
	simcfg.Plr = sc.Plr
	simcfg.RadioModel = sc.RadioModel
	simcfg.Variant = variant
	simcfg.DumpInterval = a.cfg.Coordinator.DumpEvery()
	simcfg.ReportInterval = sc.ReportEvery()
	simcfg.PingInterval = sc.PingEvery()
	if len(a.cfg.Nodes) > 0 {
		simcfg.Domain = a.cfg.Domain().Ids()
	}
	for _, l := range sc.Leaves {
		failDuration, failInterval := l.FailEvery()
		simcfg.Leaves = append(simcfg.Leaves, simulation.LeafConfig{
			Id:       NodeId(l.Id),
			Parent:   NodeId(l.Parent),
			X:        l.X,
			Y:        l.Y,
			Z:        l.Z,
			FailTime: simulation.FailTime{FailDuration: failDuration, FailInterval: failInterval},
		})
	}
	if len(simcfg.Leaves) == 0 {
		simcfg.Leaves = simulation.DefaultLeaves()
	}

	sim, err := simulation.NewSimulation(simcfg)
	if err != nil {
		return err
	}
	if err = a.addSinks(sim.Coordinator(), sim.Clock()); err != nil {
		return err
	}

	a.sim = sim
	a.backend = cli.NewSimBackend(sim)
	a.ctx.Go("simulation", func() error {
		sim.Run(a.ctx)
		return nil
	})
	return nil
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)
	signal.Ignore(syscall.SIGALRM)

	ctx.WaitAdd("handleSignals", 1)
	go func() {
		defer logger.Debugf("handleSignals exit.")
		defer ctx.WaitDone("handleSignals")

		for {
			select {
			case sig := <-c:
				logger.Infof("signal received: %v", sig)
				ctx.Cancel(nil)
			case <-ctx.Done():
				return
			}
		}
	}()
}
