// Copyright (c) 2023, The OTNS Authors.
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
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/term"
)

const (
	defaultTermWidth = 80
	helpIndent       = "    "
	simOnlyTag       = "(sim)"
)

// Help renders console help from the command sections of README.md.
type Help struct {
	termWidth     uint
	maxCmdWidth   uint
	commands      map[string]string
	commandsShort map[string]string
}

var (
	cmdHeaderPattern  = regexp.MustCompile("^### .+")
	linkTargetPattern = regexp.MustCompile(`\(#[a-z]+\)`)
)

//go:embed README.md
var cliHelpFile string

func newHelp() Help {
	h := Help{
		termWidth:     defaultTermWidth,
		commands:      make(map[string]string),
		commandsShort: make(map[string]string),
	}
	h.parseHelpFile(cliHelpFile)
	for cmd := range h.commands {
		if w := uint(len(cmd)); w > h.maxCmdWidth {
			h.maxCmdWidth = w
		}
	}
	h.update()
	return h
}

// update picks up the width of the terminal on stdout, if there is one.
func (help *Help) update() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	if width, _, err := term.GetSize(fd); err == nil && width > 0 {
		help.termWidth = uint(width)
	}
}

func (help *Help) sortedCommands() []string {
	cmds := make([]string, 0, len(help.commandsShort))
	for k := range help.commandsShort {
		cmds = append(cmds, k)
	}
	sort.Strings(cmds)
	return cmds
}

func (help *Help) outputGeneralHelp() string {
	var sb strings.Builder
	simOnly := false
	for _, c := range help.sortedCommands() {
		short := help.commandsShort[c]
		if strings.HasPrefix(short, simOnlyTag) {
			simOnly = true
		}
		fmt.Fprintf(&sb, "%-*s  %s\n", int(help.maxCmdWidth), c, short)
	}
	sb.WriteString(wordwrap.WrapString("\nFor detailed help per command, use: 'help <command>'\n", help.termWidth))
	if simOnly {
		sb.WriteString(wordwrap.WrapString("\nCommands marked "+simOnlyTag+" are only available with -role sim.\n", help.termWidth))
	}
	return sb.String()
}

func (help *Help) outputCommandHelp(command string) string {
	return help.outputHelp([]string{command})
}

// outputHelp prints the full sections of the given commands, in order.
func (help *Help) outputHelp(commands []string) string {
	help.update()
	var sb strings.Builder
	width := help.termWidth - 2
	for _, cmd := range commands {
		explanation, ok := help.commands[cmd]
		if !ok {
			explanation = cmd + "\n(Non-existent command.)"
		}
		for i, line := range strings.Split(wordwrap.WrapString(explanation, width), "\n") {
			if i == 0 {
				sb.WriteString(line + "\n")
			} else {
				sb.WriteString("  " + line + "\n")
			}
		}
	}
	return sb.String()
}

// parseHelpFile splits the markdown into one section per "### <cmd>" header.
// Fenced shell blocks become the definition, bash blocks the example. The
// first sentence of a section is its short description.
func (help *Help) parseHelpFile(md string) {
	activeCmd := ""
	indent := ""
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case cmdHeaderPattern.MatchString(line):
			activeCmd = strings.TrimSpace(line[strings.Index(line, " ")+1:])
			help.commands[activeCmd] = activeCmd + "\n"
			help.commandsShort[activeCmd] = ""
			continue
		case activeCmd == "":
			continue
		case line == "```shell":
			line, indent = "\nDefinition:", ""
		case line == "```bash":
			line, indent = "\nExample:", ""
		case line == "```":
			indent = ""
			continue
		}

		help.commands[activeCmd] += indent + markdownUnquote(line) + "\n"
		if strings.HasSuffix(line, ":") && line[0] == '\n' {
			indent = helpIndent[:2]
			continue
		}
		if help.commandsShort[activeCmd] == "" {
			help.commandsShort[activeCmd] = firstSentence(line)
		}
	}
}

func firstSentence(line string) string {
	if idx := strings.Index(line, ". "); idx > 0 {
		return line[:idx+1]
	}
	return line
}

func markdownUnquote(md string) string {
	md = strings.ReplaceAll(md, "\\", "")
	return linkTargetPattern.ReplaceAllString(md, "")
}
