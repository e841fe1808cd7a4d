package rpc

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
)

// Client talks to a ledger node over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the node at target.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc server: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func method(name string) string {
	return "/" + ServiceName + "/" + name
}

// Call signs op with signer and runs it. The caller is the address of
// the signer's public key. args is marshaled to JSON unless it already is
// a json.RawMessage.
func (c *Client) Call(ctx context.Context, signer crypto.Signer, op string, args any) (*greenproof.Receipt, error) {
	in, err := NewCallRequest(signer, op, args, time.Now())
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, in)
}

// Submit sends an already signed call request.
func (c *Client) Submit(ctx context.Context, in *CallRequest) (*greenproof.Receipt, error) {
	req, err := toStruct(in)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method("Call"), req, resp); err != nil {
		return nil, err
	}
	out := new(greenproof.Receipt)
	if err := fromStruct(resp, out); err != nil {
		return nil, fmt.Errorf("decoding %s receipt: %w", in.Operation, err)
	}
	return out, nil
}

// Read answers op and decodes the result into out.
func (c *Client) Read(ctx context.Context, op string, args, out any) error {
	raw, err := rawArgs(args)
	if err != nil {
		return err
	}
	req, err := toStruct(&ReadRequest{Operation: op, Args: raw})
	if err != nil {
		return err
	}
	resp := new(structpb.Value)
	if err := c.conn.Invoke(ctx, method("Read"), req, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := fromValue(resp, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", op, err)
	}
	return nil
}

func (c *Client) Operations(ctx context.Context) (*OperationsResponse, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method("Operations"), &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}
	out := new(OperationsResponse)
	if err := fromStruct(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events calls fn with every journaled record after since. With follow set
// it keeps waiting for new records until ctx is done or fn fails.
func (c *Client) Events(ctx context.Context, since uint64, follow bool, fn func(events.Record) error) error {
	req, err := toStruct(&EventsRequest{Since: since, Follow: follow})
	if err != nil {
		return err
	}
	desc := &Ledger_ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, method(desc.StreamName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var record events.Record
		if err := fromStruct(msg, &record); err != nil {
			return fmt.Errorf("decoding record: %w", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

func rawArgs(args any) (json.RawMessage, error) {
	switch a := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return a, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments: %w", err)
	}
	return raw, nil
}
