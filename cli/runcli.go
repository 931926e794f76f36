// Copyright (c) 2020-2023, The OTNS Authors.
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
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/openthread/ot-sink/logger"
)

type CliHandler interface {
	HandleCommand(cmd string, output io.Writer) error
	GetPrompt() string
}

type CliOptions struct {
	EchoInput bool
	Stdin     *os.File
	Stdout    *os.File
	// HistoryFile, if set, keeps the command history across runs.
	HistoryFile string
}

func DefaultCliOptions() *CliOptions {
	return &CliOptions{}
}

// CliInstance is the singleton console instance.
type CliInstance struct {
	Started          chan struct{}
	Options          *CliOptions
	readlineInstance *readline.Instance
	waitCliClosed    chan struct{}
}

var Cli = newCliInstance()

func newCliInstance() *CliInstance {
	return &CliInstance{
		Started:       make(chan struct{}),
		waitCliClosed: make(chan struct{}),
	}
}

func getCliOptions(options *CliOptions) *CliOptions {
	opts := DefaultCliOptions()
	if options != nil {
		*opts = *options
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return opts
}

// newCompleter completes command names from the help sections, plus the fixed keywords of some commands.
func newCompleter(help *Help) *readline.PrefixCompleter {
	subItems := map[string][]readline.PrefixCompleterInterface{
		"help": nil,
		"kpi":  {readline.PcItem("save")},
		"log":  nil,
		"node": nil,
	}
	for _, lv := range []string{"trace", "debug", "info", "note", "warn", "error", "crit", "off"} {
		subItems["log"] = append(subItems["log"], readline.PcItem(lv))
	}
	cmds := help.sortedCommands()
	for _, c := range cmds {
		subItems["help"] = append(subItems["help"], readline.PcItem(c))
	}

	items := make([]readline.PrefixCompleterInterface, 0, len(cmds))
	for _, c := range cmds {
		items = append(items, readline.PcItem(c, subItems[c]...))
	}
	return readline.NewPrefixCompleter(items...)
}

// keepTermState saves the terminal state of f, if it is a terminal, and returns a func restoring it.
func keepTermState(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if !readline.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := readline.GetState(fd)
	if err != nil {
		return nil, err
	}
	return func() {
		_ = readline.Restore(fd, state)
	}, nil
}

func (cli *CliInstance) RestorePrompt() {
	if cli.readlineInstance != nil {
		cli.readlineInstance.Refresh()
	}
}

// OnStdout is the handler called when new Stdout/Stderr output occurred.
func (cli *CliInstance) OnStdout() {
	cli.RestorePrompt()
}

// Stop ends a running console and waits until Run has returned.
func (cli *CliInstance) Stop() {
	<-cli.Started
	// readline's Close can block while Readline waits on input, so the loop is
	// woken with an interrupt char and a closed stdin instead.
	_, _ = cli.Options.Stdin.WriteString("\003\n")
	_ = cli.Options.Stdin.Close()
	logger.Tracef("Waiting for CLI to stop ...")
	<-cli.waitCliClosed
	logger.Tracef("CLI stopped.")
}

func (cli *CliInstance) Run(handler CliHandler, options *CliOptions) error {
	defer logger.Debugf("CLI exit.")
	defer close(cli.waitCliClosed)

	options = getCliOptions(options)
	cli.Options = options

	l, restore, err := cli.open(handler, options)
	if err != nil {
		close(cli.Started)
		return err
	}
	defer restore()
	defer func() {
		_ = l.Close()
	}()
	cli.readlineInstance = l
	close(cli.Started)

	stdout := options.Stdout
	for {
		l.SetPrompt(handler.GetPrompt())
		line, err := l.Readline()

		switch {
		case len(line) > 0 && line[0] == readline.CharInterrupt:
			return nil
		case errors.Is(err, readline.ErrInterrupt):
			if len(line) == 0 {
				return nil
			}
			// Ctrl-C in a partly typed line only drops that line.
			continue
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if options.EchoInput {
			if _, err := stdout.WriteString(line + "\n"); err != nil {
				return err
			}
		}

		cmd := strings.TrimSpace(line)
		if len(cmd) == 0 {
			continue
		}

		err = handler.HandleCommand(cmd, l.Stdout())
		_ = stdout.Sync()
		if err != nil {
			return err
		}
	}
}

func (cli *CliInstance) open(handler CliHandler, options *CliOptions) (*readline.Instance, func(), error) {
	restoreIn, err := keepTermState(options.Stdin)
	if err != nil {
		return nil, nil, err
	}
	restoreOut, err := keepTermState(options.Stdout)
	if err != nil {
		restoreIn()
		return nil, nil, err
	}
	restore := func() {
		restoreOut()
		restoreIn()
	}

	help := newHelp()
	l, err := readline.NewEx(&readline.Config{
		Prompt:            handler.GetPrompt(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistoryFile:       options.HistoryFile,
		HistorySearchFold: true,
		AutoComplete:      newCompleter(&help),
		Stdin:             options.Stdin,
		Stdout:            options.Stdout,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			// no job control in the console
			if r == readline.CharCtrlZ {
				return r, false
			}
			return r, true
		},
	})
	if err != nil {
		restore()
		return nil, nil, err
	}
	return l, restore, nil
}

// RunScript executes the commands read from r, one per line, until r is exhausted or a command fails.
// Empty lines and lines starting with '#' are skipped.
func RunScript(handler CliHandler, r io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if len(cmd) == 0 || strings.HasPrefix(cmd, "#") {
			continue
		}
		if err := handler.HandleCommand(cmd, output); err != nil {
			return err
		}
	}
	return scanner.Err()
}
