package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/merkle"
	"github.com/energywebfoundation/worker-contract-sub000/rpc"
	"github.com/energywebfoundation/worker-contract-sub000/signing"
)

var (
	rpcFlag = cli.StringFlag{
		Name:  "rpc",
		Value: "localhost:50051",
		Usage: "address of the node's GRPC endpoint",
	}
	keyFlag = cli.StringFlag{
		Name:  "key",
		Usage: "file with the hex encoded ed25519 key the operation is signed with",
	}
	sinceFlag = cli.Uint64Flag{
		Name:  "since",
		Usage: "only print events after this sequence number",
	}
	followFlag = cli.BoolFlag{
		Name:  "follow",
		Usage: "keep printing events as they are committed",
	}
)

func withClient(c *cli.Context, fn func(ctx context.Context, cl *rpc.Client) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cl, err := rpc.Dial(ctx, c.GlobalString(rpcFlag.Name))
	if err != nil {
		return err
	}
	defer cl.Close()
	return fn(ctx, cl)
}

// argsOf returns the JSON arguments given after the operation name.
func argsOf(c *cli.Context) (json.RawMessage, error) {
	raw := c.Args().Get(1)
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("arguments are not valid JSON: %s", raw)
	}
	return json.RawMessage(raw), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func call(c *cli.Context) error {
	op := c.Args().First()
	if op == "" {
		return errors.New("missing operation")
	}
	key, err := loadKey(c.String(keyFlag.Name))
	if err != nil {
		return err
	}
	args, err := argsOf(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, cl *rpc.Client) error {
		receipt, err := cl.Call(ctx, key, op, args)
		if err != nil {
			return err
		}
		return printJSON(receipt)
	})
}

// loadKey reads a hex encoded ed25519 seed or private key.
func loadKey(filename string) (ed25519.PrivateKey, error) {
	if filename == "" {
		return nil, errors.New("missing --key")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
}

func keygen(c *cli.Context) error {
	filename := c.Args().First()
	if filename == "" {
		return errors.New("missing key file")
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return printJSON(map[string]any{
		"address":   signing.Address(pub),
		"publicKey": hex.EncodeToString(pub),
	})
}

func read(c *cli.Context) error {
	op := c.Args().First()
	if op == "" {
		return errors.New("missing operation")
	}
	args, err := argsOf(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, cl *rpc.Client) error {
		var result json.RawMessage
		if err := cl.Read(ctx, op, args, &result); err != nil {
			return err
		}
		return printJSON(result)
	})
}

func operations(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *rpc.Client) error {
		ops, err := cl.Operations(ctx)
		if err != nil {
			return err
		}
		return printJSON(ops)
	})
}

func tail(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *rpc.Client) error {
		err := cl.Events(ctx, c.Uint64(sinceFlag.Name), c.Bool(followFlag.Name), func(r events.Record) error {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		})
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	})
}

func readBatch(filename string) (*merkle.Batch, []map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("reading file: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("decoding records: %w", err)
	}
	batch, err := merkle.NewBatch(records)
	if err != nil {
		return nil, nil, err
	}
	return batch, records, nil
}

func batch(c *cli.Context) error {
	b, _, err := readBatch(c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(b)
}

func prove(c *cli.Context) error {
	b, records, err := readBatch(c.Args().First())
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || i < 0 || i >= len(records) {
		return fmt.Errorf("record index must be between 0 and %d", len(records)-1)
	}
	key := c.Args().Get(2)
	value, ok := records[i][key]
	if !ok {
		return fmt.Errorf("record %d has no field %q", i, key)
	}
	leaf, proof, err := b.Items[i].FieldProof(key, value)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"batchRoot": b.Root,
		"dataHash":  b.Items[i].DataHash,
		"dataProof": b.Items[i].DataProof,
		"leaf":      leaf,
		"proof":     proof,
	})
}

func main() {
	app := cli.NewApp()
	app.Name = "gpcli"
	app.Usage = "talk to a greenproofd node"
	app.Flags = []cli.Flag{rpcFlag}
	app.Commands = []cli.Command{
		{
			Name:      "call",
			Usage:     "run a mutating operation",
			ArgsUsage: "<operation> [json arguments]",
			Flags:     []cli.Flag{keyFlag},
			Action:    call,
		},
		{
			Name:      "keygen",
			Usage:     "create a signing key and print the address it calls as",
			ArgsUsage: "<file>",
			Action:    keygen,
		},
		{
			Name:      "read",
			Usage:     "run a query",
			ArgsUsage: "<operation> [json arguments]",
			Action:    read,
		},
		{
			Name:   "ops",
			Usage:  "list the operations the node accepts",
			Action: operations,
		},
		{
			Name:   "events",
			Usage:  "print the event journal",
			Flags:  []cli.Flag{sinceFlag, followFlag},
			Action: tail,
		},
		{
			Name:      "batch",
			Usage:     "compute the batch root and data proofs of a JSON array of records",
			ArgsUsage: "<file>",
			Action:    batch,
		},
		{
			Name:      "prove",
			Usage:     "prove one field of one record of a batch",
			ArgsUsage: "<file> <index> <key>",
			Action:    prove,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
