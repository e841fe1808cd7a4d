// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2017-2023 The Spacemesh developers

package config

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"

	"github.com/energywebfoundation/worker-contract-sub000/broadcaster"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/rpc"
)

const (
	defaultDbDirName      = "db"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "greenproofd.log"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultRPCPort        = 50051
	defaultRESTPort       = 8545
	defaultSweepPageSize  = 100
)

// Config defines the configuration options for greenproofd.
//
// See ReadConfigFile and SetupConfig for the loading process.
//
//nolint:lll
type Config struct {
	Dir             string   `long:"dir"            description:"The base directory that contains the node's data, logs, configuration file, etc."`
	ConfigFile      string   `long:"configfile"     description:"Path to configuration file"                                                        short:"c"`
	DataDir         string   `long:"datadir"        description:"The directory to store the node's data within"                                    short:"b"`
	DbDir           string   `long:"dbdir"          description:"The directory to store DBs within"`
	LogDir          string   `long:"logdir"         description:"Directory to log output"`
	DebugLog        bool     `long:"debuglog"       description:"Enable debug logs"`
	JSONLog         bool     `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles     int      `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize  int      `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	RawRPCListener  string   `long:"rpclisten"      description:"The interface/port/socket to listen for RPC connections"                          short:"r"`
	RawRESTListener string   `long:"restlisten"     description:"The interface/port/socket to listen for REST connections"                         short:"w"`
	MetricsPort     *uint16  `long:"metrics-port"   description:"The port to expose metrics"`
	CORSOrigins     []string `long:"cors-origin"    description:"Origins allowed to call the REST endpoint (repeatable)"`

	MaxRequestAge time.Duration `long:"max-request-age" description:"How far a signed call's timestamp may drift from the node's clock"`

	ClaimsFile string `long:"claims-file" description:"YAML file with the role claims the node trusts"`

	SweepInterval time.Duration `long:"sweep-interval"  description:"Cancel expired votings on this interval as the owner (0 disables)"`
	SweepPageSize uint64        `long:"sweep-page-size" description:"Number of votings checked per sweep call"`

	Webhooks         []string      `long:"webhook"           description:"URL committed events are posted to (repeatable)"`
	BroadcastAcks    uint          `long:"broadcast-acks"    description:"Number of webhooks that must accept a broadcast"`
	BroadcastTimeout time.Duration `long:"broadcast-timeout" description:"Timeout of one broadcast to the webhooks"`

	CPUProfile string `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	Profile    string `long:"profile"    description:"Enable HTTP profiling on given port -- must be between 1024 and 65535"`

	Ledger greenproof.Config `group:"Ledger" namespace:"ledger"`
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	dir := "./greenproof"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		dir = filepath.Join(cacheDir, "greenproof")
	}

	return &Config{
		Dir:              dir,
		DataDir:          filepath.Join(dir, defaultDataDirname),
		DbDir:            filepath.Join(dir, defaultDbDirName),
		LogDir:           filepath.Join(dir, defaultLogDirname),
		MaxLogFiles:      defaultMaxLogFiles,
		MaxLogFileSize:   defaultMaxLogFileSize,
		RawRPCListener:   fmt.Sprintf("localhost:%d", defaultRPCPort),
		RawRESTListener:  fmt.Sprintf("localhost:%d", defaultRESTPort),
		MaxRequestAge:    rpc.DefaultMaxRequestAge,
		SweepPageSize:    defaultSweepPageSize,
		BroadcastAcks:    1,
		BroadcastTimeout: broadcaster.DefaultBroadcastTimeout,
		Ledger:           greenproof.DefaultConfig(),
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	logging.FromContext(context.Background()).Sugar().Debugf("reading config from %s", cfg.ConfigFile)
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and initializes filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// Directories left at their defaults move under a non default base
	// directory.
	defaultCfg := DefaultConfig()
	if cfg.Dir != defaultCfg.Dir {
		if cfg.DataDir == defaultCfg.DataDir {
			cfg.DataDir = filepath.Join(cfg.Dir, defaultDataDirname)
		}
		if cfg.LogDir == defaultCfg.LogDir {
			cfg.LogDir = filepath.Join(cfg.Dir, defaultLogDirname)
		}
		if cfg.DbDir == defaultCfg.DbDir {
			cfg.DbDir = filepath.Join(cfg.Dir, defaultDbDirName)
		}
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.Dir, err)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DbDir = cleanAndExpandPath(cfg.DbDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.ClaimsFile = cleanAndExpandPath(cfg.ClaimsFile)

	return cfg, nil
}

// LogFile is the rotated log file configuration.
func (c *Config) LogFile() logging.FileConfig {
	return logging.FileConfig{
		Name:     filepath.Join(c.LogDir, defaultLogFilename),
		MaxFiles: c.MaxLogFiles,
		MaxSize:  c.MaxLogFileSize,
	}
}

// LedgerDbDir is where the ledger store lives.
func (c *Config) LedgerDbDir() string {
	return filepath.Join(c.DbDir, "ledger")
}

// AccountsDbDir is where the reward payouts are booked.
func (c *Config) AccountsDbDir() string {
	return filepath.Join(c.DbDir, "accounts")
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// implement zap.ObjectMarshaler interface.
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("dir", c.Dir)
	enc.AddString("dbdir", c.DbDir)
	enc.AddString("rpclisten", c.RawRPCListener)
	enc.AddString("restlisten", c.RawRESTListener)
	enc.AddString("claims-file", c.ClaimsFile)
	enc.AddDuration("max-request-age", c.MaxRequestAge)
	enc.AddDuration("sweep-interval", c.SweepInterval)
	enc.AddInt("webhooks", len(c.Webhooks))
	return enc.AddObject("ledger", &c.Ledger)
}
