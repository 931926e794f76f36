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

// Package rpc serves the coordinator's node table over gRPC.
//
// The service has no generated stubs; requests and replies are well-known protobuf types:
//
//	service Sink {
//	  rpc Snapshot(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Node(google.protobuf.UInt32Value) returns (google.protobuf.Struct);
//	}
package rpc

import (
	"context"
	"encoding/json"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/sink"
	. "github.com/openthread/ot-sink/types"
)

const ServiceName = "otsink.Sink"

// SnapshotProvider is implemented by sink.Coordinator. Snapshot must be safe for concurrent use.
type SnapshotProvider interface {
	Snapshot() *sink.Snapshot
}

type SinkServer interface {
	Snapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Node(ctx context.Context, req *wrapperspb.UInt32Value) (*structpb.Struct, error)
}

var sinkServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SinkServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Snapshot",
			Handler:    snapshotHandler,
		},
		{
			MethodName: "Node",
			Handler:    nodeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "otsink.proto",
}

func snapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SinkServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Snapshot",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SinkServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func nodeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SinkServer).Node(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Node",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SinkServer).Node(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterSinkServer(s grpc.ServiceRegistrar, srv SinkServer) {
	s.RegisterService(&sinkServiceDesc, srv)
}

type sinkServer struct {
	provider SnapshotProvider
}

func NewSinkServer(provider SnapshotProvider) SinkServer {
	return &sinkServer{provider: provider}
}

func (ss *sinkServer) Snapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(ss.provider.Snapshot())
}

func (ss *sinkServer) Node(_ context.Context, req *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	id := req.GetValue()
	if id == 0 || id > 255 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid node id %d", id)
	}
	snap := ss.provider.Snapshot()
	if !NewNodeDomain(snap.Nodes).Contains(NodeId(id)) {
		return nil, status.Errorf(codes.InvalidArgument, "node %d is not in the domain", id)
	}
	for _, row := range snap.Rows {
		if row.NodeId == NodeId(id) {
			return toStruct(row)
		}
	}
	return nil, status.Errorf(codes.NotFound, "node %d not seen", id)
}

// toStruct converts v through its JSON form, so field names match the JSON reports.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// Serve serves the Sink service on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener, provider SnapshotProvider) error {
	server := grpc.NewServer()
	RegisterSinkServer(server, NewSinkServer(provider))

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	logger.Infof("gRPC sink server serving on %s ...", ln.Addr())
	return server.Serve(ln)
}
