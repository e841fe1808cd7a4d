package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/energywebfoundation/worker-contract-sub000/broadcaster"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

//go:generate mockgen -package mocks -destination mocks/ledger.go . Ledger

// Ledger is what the transports need from the ledger.
type Ledger interface {
	Call(ctx context.Context, caller types.Address, op string, args json.RawMessage) (*greenproof.Receipt, error)
	Read(ctx context.Context, op string, args json.RawMessage) (any, error)
	Events(ctx context.Context, since uint64, limit int) ([]events.Record, error)
}

// Subscriber hands out live event subscriptions.
type Subscriber interface {
	Subscribe(buffer int) *broadcaster.Subscription
}

// rpcServer is a gRPC front end to the ledger.
type rpcServer struct {
	ledger Ledger
	subs   Subscriber
	auth   *Authenticator
}

// A compile time check to ensure that rpcServer fully implements
// the LedgerServer gRPC rpc.
var _ LedgerServer = (*rpcServer)(nil)

// NewServer creates the gRPC service. subs may be nil, in which case
// Events never follows.
func NewServer(ledger Ledger, subs Subscriber, auth *Authenticator) *rpcServer {
	return &rpcServer{ledger: ledger, subs: subs, auth: auth}
}

func (r *rpcServer) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CallRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed call request: %v", err)
	}
	caller, args, err := r.auth.Authenticate(&in)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	receipt, err := r.ledger.Call(ctx, caller, in.Operation, args)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out, err := toStruct(receipt)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding receipt: %v", err)
	}
	return out, nil
}

func (r *rpcServer) Read(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	var in ReadRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed read request: %v", err)
	}
	result, err := r.ledger.Read(ctx, in.Operation, in.Args)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out, err := toValue(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding result: %v", err)
	}
	return out, nil
}

func (r *rpcServer) Operations(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	mutating, queries := greenproof.Operations()
	out, err := toStruct(OperationsResponse{Mutating: mutating, Queries: queries})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding operations: %v", err)
	}
	return out, nil
}

// Events streams the journal after in.Since and, when asked to follow,
// every record committed afterwards.
func (r *rpcServer) Events(req *structpb.Struct, stream Ledger_EventsServer) error {
	ctx := stream.Context()
	var in EventsRequest
	if err := decodeRequest(req, &in); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed events request: %v", err)
	}
	var sub *broadcaster.Subscription
	if in.Follow && r.subs != nil {
		// subscribe before reading the backlog so nothing falls in between
		sub = r.subs.Subscribe(0)
		defer sub.Close()
	}

	last := in.Since
	for {
		records, err := r.ledger.Events(ctx, last, greenproof.MaxEventsPage)
		if err != nil {
			return toStatus(ctx, err)
		}
		for i := range records {
			if err := sendRecord(stream, &records[i]); err != nil {
				return err
			}
			last = records[i].Seq
		}
		if len(records) < greenproof.MaxEventsPage {
			break
		}
	}
	if sub == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case record, ok := <-sub.C:
			if !ok {
				return status.Error(codes.ResourceExhausted, "event subscriber fell behind")
			}
			if record.Seq <= last {
				continue
			}
			if err := sendRecord(stream, &record); err != nil {
				return err
			}
			last = record.Seq
		}
	}
}

func sendRecord(stream Ledger_EventsServer, record *events.Record) error {
	msg, err := toStruct(record)
	if err != nil {
		return status.Errorf(codes.Internal, "encoding record %d: %v", record.Seq, err)
	}
	return stream.Send(msg)
}

var classCodes = []struct {
	class error
	code  codes.Code
}{
	{ErrUnauthenticated, codes.Unauthenticated},
	{types.ErrAuthorization, codes.PermissionDenied},
	{types.ErrStateConflict, codes.FailedPrecondition},
	{types.ErrNotFound, codes.NotFound},
	{types.ErrResourceLimit, codes.ResourceExhausted},
	{types.ErrTemporal, codes.OutOfRange},
	{types.ErrValidation, codes.InvalidArgument},
	{types.ErrPaused, codes.Unavailable},
	{types.ErrUnknownCommand, codes.Unimplemented},
}

// Code maps a ledger error to the gRPC code of its class.
func Code(err error) codes.Code {
	for _, c := range classCodes {
		if errors.Is(err, c.class) {
			return c.code
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

func toStatus(ctx context.Context, err error) error {
	code := Code(err)
	if code == codes.Internal {
		logging.FromContext(ctx).Error("ledger failure", zap.Error(err))
		return status.Error(codes.Internal, "internal ledger failure")
	}
	return status.Error(code, err.Error())
}
