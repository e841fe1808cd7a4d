package server_test

// End to end tests running a ledger node and interacting with it via
// its GRPC and REST APIs.

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/energywebfoundation/worker-contract-sub000/config"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/rpc"
	"github.com/energywebfoundation/worker-contract-sub000/server"
	"github.com/energywebfoundation/worker-contract-sub000/signing"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

const randomHost = "localhost:0"

var (
	ownerKey  = ed25519.NewKeyFromSeed(bytes.Repeat([]byte{1}, ed25519.SeedSize))
	workerKey = ed25519.NewKeyFromSeed(bytes.Repeat([]byte{2}, ed25519.SeedSize))

	owner  = signing.Address(ownerKey.Public().(ed25519.PublicKey))
	worker = signing.Address(workerKey.Public().(ed25519.PublicKey))
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.RawRPCListener = randomHost
	cfg.RawRESTListener = randomHost
	cfg.ClaimsFile = filepath.Join(cfg.Dir, "claims.yaml")
	cfg.Ledger.Owner = owner
	cfg.Ledger.ClaimManager = types.MustAddress("0x0000000000000000000000000000000000000002")
	cfg.Ledger.RevocationRegistry = types.MustAddress("0x0000000000000000000000000000000000000003")

	require.NoError(t, roles.WriteClaims(cfg.ClaimsFile, &roles.Claims{
		Granted: []roles.Claim{{Subject: worker, Role: roles.Defaults[roles.Worker].Name, Version: 1}},
	}))
	cfg, err := config.SetupConfig(cfg)
	require.NoError(t, err)
	return cfg
}

func spawnServer(t *testing.T, cfg *config.Config) (*server.Server, *rpc.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), zaptest.NewLogger(t)))

	srv, err := server.New(ctx, *cfg)
	require.NoError(t, err)

	var eg errgroup.Group
	eg.Go(func() error { return srv.Start(ctx) })
	t.Cleanup(func() {
		cancel()
		require.NoError(t, eg.Wait())
		require.NoError(t, srv.Close())
	})

	client, err := rpc.Dial(ctx, srv.GrpcAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })
	return srv, client
}

func TestServerGrpc(t *testing.T) {
	_, client := spawnServer(t, testConfig(t))
	ctx := context.Background()

	receipt, err := client.Call(ctx, ownerKey, greenproof.OpAddWorker, map[string]any{"worker": worker})
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, "WorkerAdded", receipt.Events[0].Name)

	var whitelisted bool
	require.NoError(t, client.Read(ctx, "isWhitelistedWorker", map[string]any{"worker": worker}, &whitelisted))
	require.True(t, whitelisted)

	_, err = client.Call(ctx, workerKey, greenproof.OpPause, nil)
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	var names []string
	err = client.Events(ctx, 0, false, func(r events.Record) error {
		names = append(names, r.Name)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, names, "WorkerAdded")
}

func TestServerAuthenticatesCallers(t *testing.T) {
	srv, client := spawnServer(t, testConfig(t))
	ctx := context.Background()

	// the worker signs, then claims to be the owner
	forged, err := rpc.NewCallRequest(workerKey, greenproof.OpPause, nil, time.Now())
	require.NoError(t, err)
	forged.PublicKey = ownerKey.Public().(ed25519.PublicKey)
	_, err = client.Submit(ctx, forged)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	body, err := json.Marshal(forged)
	require.NoError(t, err)
	resp, err := http.Post("http://"+srv.RestAddr().String()+"/v1/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, srv.Ledger().View(ctx, func(r db.Reader) error {
		state, err := greenproof.GetState(r)
		require.NoError(t, err)
		require.False(t, state.Paused)
		return nil
	}))

	signed, err := rpc.NewCallRequest(ownerKey, greenproof.OpPause, nil, time.Now())
	require.NoError(t, err)
	body, err = json.Marshal(signed)
	require.NoError(t, err)
	resp, err = http.Post("http://"+srv.RestAddr().String()+"/v1/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the same signed request is not accepted twice, on either transport
	_, err = client.Submit(ctx, signed)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServerRest(t *testing.T) {
	srv, client := spawnServer(t, testConfig(t))
	_, err := client.Call(context.Background(), ownerKey, greenproof.OpAddWorker, map[string]any{"worker": worker})
	require.NoError(t, err)

	resp, err := http.Post(
		"http://"+srv.RestAddr().String()+"/v1/read",
		"application/json",
		strings.NewReader(`{"operation":"numberOfWorkers"}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `1`, buf.String())
}

func TestServerReopensLedger(t *testing.T) {
	cfg := testConfig(t)
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))

	srv, err := server.New(ctx, *cfg)
	require.NoError(t, err)
	_, err = srv.Ledger().AddWorker(ctx, owner, worker)
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	srv, err = server.New(ctx, *cfg)
	require.NoError(t, err)
	defer srv.Close()
	n, err := srv.Ledger().Read(ctx, "numberOfWorkers", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestServerRejectsInvalidLedgerConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Owner = types.ZeroAddress
	_, err := server.New(logging.NewContext(context.Background(), zaptest.NewLogger(t)), *cfg)
	require.ErrorContains(t, err, "Invalid contract Owner")
}
