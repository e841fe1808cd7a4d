package rpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "greenproof.v1.Ledger"

// The service carries its messages as google.protobuf.Struct documents.
// The types below are their JSON shapes.

// CallRequest runs a mutating operation. The caller is the address of
// PublicKey, which must have signed the scale encoding of
// signing.Request{Operation, Args, Timestamp}.
type CallRequest struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
	Timestamp uint64          `json:"timestamp"`
	PublicKey []byte          `json:"publicKey"`
	Signature []byte          `json:"signature"`
}

type ReadRequest struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// EventsRequest asks for the journal after sequence number Since. With
// Follow set the stream stays open and carries new events as they commit.
type EventsRequest struct {
	Since  uint64 `json:"since"`
	Follow bool   `json:"follow"`
}

type OperationsResponse struct {
	Mutating []string `json:"mutating"`
	Queries  []string `json:"queries"`
}

// LedgerServer is the server API for the Ledger service.
//
//	Call       CallRequest -> greenproof.Receipt
//	Read       ReadRequest -> result value
//	Operations Empty -> OperationsResponse
//	Events     EventsRequest -> stream of events.Record
type LedgerServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Read(context.Context, *structpb.Struct) (*structpb.Value, error)
	Operations(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Events(*structpb.Struct, Ledger_EventsServer) error
}

type Ledger_EventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type ledgerEventsServer struct {
	grpc.ServerStream
}

func (x *ledgerEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&Ledger_ServiceDesc, srv)
}

func unaryHandler[Req any](
	method string,
	call func(srv LedgerServer, ctx context.Context, req *Req) (any, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(LedgerServer).Events(m, &ledgerEventsServer{stream})
}

// Ledger_ServiceDesc is the grpc.ServiceDesc for the Ledger service.
var Ledger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler: unaryHandler("Call", func(srv LedgerServer, ctx context.Context, req *structpb.Struct) (any, error) {
				return srv.Call(ctx, req)
			}),
		},
		{
			MethodName: "Read",
			Handler: unaryHandler("Read", func(srv LedgerServer, ctx context.Context, req *structpb.Struct) (any, error) {
				return srv.Read(ctx, req)
			}),
		},
		{
			MethodName: "Operations",
			Handler: unaryHandler("Operations", func(srv LedgerServer, ctx context.Context, req *emptypb.Empty) (any, error) {
				return srv.Operations(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rpc/service.go",
}
