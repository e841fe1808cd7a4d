package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/energywebfoundation/worker-contract-sub000/logging"
)

func TestContextLogger(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := logging.NewContext(context.Background(), logger)
	require.Same(t, logger, logging.FromContext(ctx))
	require.NotNil(t, logging.FromContext(context.Background()))
}

func TestFileLogger(t *testing.T) {
	name := filepath.Join(t.TempDir(), "greenproofd.log")
	logger := logging.New(zap.InfoLevel, true, logging.FileConfig{Name: name, MaxFiles: 1, MaxSize: 1})
	logger.Debug("written to the file only")
	logger.Info("ledger opened", zap.String("owner", "0x01"))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"written to the file only"`)
	require.Contains(t, string(data), `"owner":"0x01"`)
}
