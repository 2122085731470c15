// Copyright 2025 Certen Protocol
//
// Package config holds the peg validator's network-wide constants, its
// embedded SPV trust anchor, and the environment-variable configuration for
// the node binary. Nothing here participates in consensus state except the
// constants: every replica must compile against the identical MinWork and
// SignatoryChangeInterval values or they will disagree on which actions to
// accept.
package config

import (
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
)

// MinWork is the minimum work value (see statemachine's work estimator) a
// work-proof transaction must meet to be accepted.
const MinWork uint64 = 1 << 20

// SignatoryChangeInterval is the minimum number of seconds that must
// elapse between consecutive signatory-set snapshots (one week).
const SignatoryChangeInterval uint64 = 60 * 60 * 24 * 7

// BitcoinParams names the Bitcoin network this validator is configured for.
// The original implementation pinned testnet; this repository does the same
// by default. Nothing in this repository reads it: the SPV cache does not
// check headers against network parameters, and OutputScript does not
// depend on the network.
var BitcoinParams = &chaincfg.TestNet3Params

//go:embed genesis_header.json
var genesisHeaderJSON []byte

// GenesisHeader is the embedded SPV trust anchor: a hard-coded Bitcoin
// header plus the height the chain operator asserts it sits at. Every
// deposit a validator accepts must reference a height at or above this one,
// since the header cache has no information about anything earlier.
type GenesisHeader struct {
	Height uint32
	Header []byte // serialized wire.BlockHeader, 80 bytes
}

type genesisHeaderFile struct {
	Height    uint32 `json:"height"`
	HeaderHex string `json:"header_hex"`
}

// LoadGenesisHeader decodes the embedded checkpoint header, the same way
// the original implementation's get_checkpoint_header deserialized
// config/header.json at compile time.
func LoadGenesisHeader() (GenesisHeader, error) {
	var f genesisHeaderFile
	if err := json.Unmarshal(genesisHeaderJSON, &f); err != nil {
		return GenesisHeader{}, fmt.Errorf("config: decode genesis header: %w", err)
	}
	header, err := hex.DecodeString(f.HeaderHex)
	if err != nil {
		return GenesisHeader{}, fmt.Errorf("config: decode genesis header hex: %w", err)
	}
	return GenesisHeader{Height: f.Height, Header: header}, nil
}

// Config is the node binary's environment-derived configuration. It carries
// no consensus-relevant values (those are the constants above plus the
// genesis header) -- only wiring: where to listen, where to persist data,
// which CometBFT chain to join.
type Config struct {
	// ChainID identifies the CometBFT chain this validator participates in.
	ChainID string

	// DataDir is the base directory for the node's persistent KV store.
	DataDir string

	// ListenAddr is the ABCI server's listen address (CometBFT dials it as
	// its application connection).
	ListenAddr string

	// MetricsAddr is the Prometheus HTTP exporter's listen address.
	MetricsAddr string

	// LogLevel is read from PEGVALIDATOR_LOG_LEVEL; the node binary does not
	// apply it to any logger.
	LogLevel string
}

// Load reads configuration from environment variables, applying the same
// safe-default convention the rest of this corpus uses for node wiring
// (CLI/env parsing is explicitly out of this repository's core scope, but
// the binary still needs somewhere to read it from).
func Load() (*Config, error) {
	return &Config{
		ChainID:     getEnv("PEGVALIDATOR_CHAIN_ID", "pegvalidator"),
		DataDir:     getEnv("PEGVALIDATOR_DATA_DIR", "./data"),
		ListenAddr:  getEnv("PEGVALIDATOR_ABCI_ADDR", "tcp://127.0.0.1:26658"),
		MetricsAddr: getEnv("PEGVALIDATOR_METRICS_ADDR", "0.0.0.0:9090"),
		LogLevel:    getEnv("PEGVALIDATOR_LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
