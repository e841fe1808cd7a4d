package rpc

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/cors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
)

const maxRequestBody = 1 << 20

// NewHandler serves the ledger as JSON over HTTP through the grpc-gateway
// mux, calling the same service implementation the gRPC server uses:
//
//	POST /v1/call        CallRequest -> Receipt
//	POST /v1/read        ReadRequest -> result
//	GET  /v1/events      ?since=&limit= -> []Record
//	GET  /v1/operations  -> OperationsResponse
func NewHandler(ledger Ledger, auth *Authenticator, allowedOrigins []string) (http.Handler, error) {
	srv := NewServer(ledger, nil, auth)
	mux := runtime.NewServeMux()

	routes := []struct {
		method, path string
		handler      runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/call", unaryRoute(mux, func(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
			return srv.Call(ctx, req)
		})},
		{http.MethodPost, "/v1/read", unaryRoute(mux, func(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
			return srv.Read(ctx, req)
		})},
		{http.MethodGet, "/v1/operations", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			_, outbound := runtime.MarshalerForRequest(mux, r)
			resp, err := srv.Operations(r.Context(), &emptypb.Empty{})
			if err != nil {
				runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
				return
			}
			runtime.ForwardResponseMessage(r.Context(), mux, outbound, w, r, resp)
		}},
		{http.MethodGet, "/v1/events", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			_, outbound := runtime.MarshalerForRequest(mux, r)
			resp, err := eventsPage(r, ledger)
			if err != nil {
				runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
				return
			}
			runtime.ForwardResponseMessage(r.Context(), mux, outbound, w, r, resp)
		}},
	}
	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.path, route.handler); err != nil {
			return nil, fmt.Errorf("registering %s %s: %w", route.method, route.path, err)
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux), nil
}

// unaryRoute decodes the body into a Struct the way a generated gateway
// handler decodes its request message, and forwards the service reply.
func unaryRoute(mux *runtime.ServeMux, call func(context.Context, *structpb.Struct) (proto.Message, error)) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		ctx := r.Context()
		inbound, outbound := runtime.MarshalerForRequest(mux, r)
		req := new(structpb.Struct)
		body := http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := inbound.NewDecoder(body).Decode(req); err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Errorf(codes.InvalidArgument, "%v", err))
			return
		}
		resp, err := call(ctx, req)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, resp)
	}
}

func eventsPage(r *http.Request, ledger Ledger) (*structpb.Value, error) {
	ctx := r.Context()
	query := r.URL.Query()
	since, err := parseUint(query.Get("since"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "since: %v", err)
	}
	limit, err := parseUint(query.Get("limit"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "limit: %v", err)
	}
	if limit == 0 || limit > greenproof.MaxEventsPage {
		limit = greenproof.MaxEventsPage
	}
	records, err := ledger.Events(ctx, since, int(limit))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	if records == nil {
		records = []events.Record{}
	}
	out, err := toValue(records)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding records: %v", err)
	}
	return out, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
