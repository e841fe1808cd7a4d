// Package rpc exposes the ledger over gRPC and HTTP. Both transports carry
// JSON: gRPC through a JSON codec and a hand written service description,
// HTTP through a small handler for browsers and scripts.
package rpc
