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

// otsink-query asks a running coordinator for its current snapshot, or for one node, over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/rpc"
	. "github.com/openthread/ot-sink/types"
)

var args struct {
	Server  string
	Timeout time.Duration
}

func parseArgs() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-server host:port] [<node-id>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  Prints the coordinator snapshot, or the entry of one node, as JSON.\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&args.Server, "server", "localhost:9000", "coordinator gRPC address")
	flag.DurationVar(&args.Timeout, "timeout", 5*time.Second, "request timeout")
	flag.Parse()

	if len(flag.Args()) > 1 {
		flag.Usage()
		os.Exit(1)
	}
}

func main() {
	parseArgs()
	logger.SetLevel(logger.WarnLevel)

	client, conn, err := rpc.Dial(args.Server)
	logger.FatalIfError(err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
	defer cancel()

	var reply *structpb.Struct
	if flag.NArg() == 0 {
		reply, err = client.Snapshot(ctx)
	} else {
		id, perr := strconv.Atoi(flag.Arg(0))
		if perr != nil || id <= 0 || id > 0xff {
			logger.Fatalf("invalid node id: %s", flag.Arg(0))
		}
		reply, err = client.Node(ctx, NodeId(id))
	}
	logger.FatalIfError(err)

	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(reply)
	logger.FatalIfError(err)
	fmt.Println(string(data))
}
