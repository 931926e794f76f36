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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	. "github.com/openthread/ot-sink/types"
)

// NodeLogger is a node-specific log object. The display level and an optional log file are set per node.
type NodeLogger struct {
	Id           NodeId
	displayLevel Level
	fileLevel    Level

	mutex       sync.Mutex
	logFile     *os.File
	logFileName string
}

var (
	nodeLogs      = make(map[NodeId]*NodeLogger, 16)
	nodeLogsMutex sync.Mutex
)

// GetNodeLogger returns the NodeLogger for node id, creating it on first use.
func GetNodeLogger(id NodeId) *NodeLogger {
	nodeLogsMutex.Lock()
	defer nodeLogsMutex.Unlock()

	nl, ok := nodeLogs[id]
	if !ok {
		nl = &NodeLogger{
			Id:           id,
			displayLevel: DefaultLevel,
			fileLevel:    DebugLevel,
		}
		nodeLogs[id] = nl
	}
	return nl
}

// EnableFile starts writing this node's log entries to <dir>/node_<id>.log as well.
func (nl *NodeLogger) EnableFile(dir string) error {
	nl.mutex.Lock()
	defer nl.mutex.Unlock()

	if nl.logFile != nil {
		return nil
	}
	name := filepath.Join(dir, fmt.Sprintf("node_%d.log", nl.Id))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0664)
	if err != nil {
		return errors.Wrapf(err, "open node log file %s", name)
	}
	nl.logFile = f
	nl.logFileName = name
	_, _ = fmt.Fprintf(f, "#\n# ot-sink log for %sCreated %s\n", GetNodeName(nl.Id), time.Now().Format(time.RFC3339))
	return nil
}

func (nl *NodeLogger) SetDisplayLevel(level Level) {
	nl.mutex.Lock()
	defer nl.mutex.Unlock()
	nl.displayLevel = level
}

func (nl *NodeLogger) SetFileLevel(level Level) {
	nl.mutex.Lock()
	defer nl.mutex.Unlock()
	nl.fileLevel = level
}

// Logf logs a formatted message for the node at the given level.
func (nl *NodeLogger) Logf(level Level, format string, args []interface{}) {
	nl.mutex.Lock()
	isDisplay := level <= nl.displayLevel && Enabled(level)
	isFile := nl.logFile != nil && level <= nl.fileLevel
	nl.mutex.Unlock()
	if !isDisplay && !isFile {
		return
	}

	msg := getMessage(format, args)
	if isFile {
		nl.writeToLogFile(time.Now().Format("15:04:05.000") + " " + msg)
	}
	if isDisplay {
		logAlways(level, GetNodeName(nl.Id)+msg)
	}
}

func (nl *NodeLogger) Tracef(format string, args ...interface{}) {
	nl.Logf(TraceLevel, format, args)
}

func (nl *NodeLogger) Debugf(format string, args ...interface{}) {
	nl.Logf(DebugLevel, format, args)
}

func (nl *NodeLogger) Infof(format string, args ...interface{}) {
	nl.Logf(InfoLevel, format, args)
}

func (nl *NodeLogger) Warnf(format string, args ...interface{}) {
	nl.Logf(WarnLevel, format, args)
}

func (nl *NodeLogger) Errorf(format string, args ...interface{}) {
	nl.Logf(ErrorLevel, format, args)
}

func (nl *NodeLogger) Error(err error) {
	if err == nil {
		return
	}
	nl.Logf(ErrorLevel, "%v", []interface{}{err})
}

func (nl *NodeLogger) writeToLogFile(line string) {
	nl.mutex.Lock()
	defer nl.mutex.Unlock()
	if nl.logFile == nil {
		return
	}
	if _, err := nl.logFile.WriteString(line + "\n"); err != nil {
		_ = nl.logFile.Close()
		nl.logFile = nil
		Errorf("couldn't write to node log file (%s), closing it", nl.logFileName)
	}
}

// Close closes the node log file, if any.
func (nl *NodeLogger) Close() {
	nl.mutex.Lock()
	defer nl.mutex.Unlock()
	if nl.logFile != nil {
		_ = nl.logFile.Close()
		nl.logFile = nil
	}
}

// CloseNodeLoggers closes the log files of all node loggers.
func CloseNodeLoggers() {
	nodeLogsMutex.Lock()
	defer nodeLogsMutex.Unlock()
	for _, nl := range nodeLogs {
		nl.Close()
	}
}
