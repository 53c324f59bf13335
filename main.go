package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spendzk/pkg/core"
	"spendzk/pkg/executor"
	"spendzk/pkg/p2p"
	"spendzk/pkg/prover"
	"spendzk/pkg/rpc"
	"spendzk/pkg/state"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config := core.DefaultConfig()

	// Get port from environment variable or use default
	if v := os.Getenv("PROVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal().Err(err).Str("value", v).Msg("Failed to parse prover port")
		}
		config.ProverPort = port
	}

	if v := os.Getenv("RPC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal().Err(err).Str("value", v).Msg("Failed to parse RPC port")
		}
		config.RPCPort = port
	}
	if v := os.Getenv("VERIFY_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal().Err(err).Str("value", v).Msg("Failed to parse verify concurrency")
		}
		config.VerifyConcurrency = n
	}
	config.TrustedExecutor = os.Getenv("TRUSTED_EXECUTOR")

	// Get bootstrap peers from environment variable
	if peers := os.Getenv("BOOTSTRAP_PEERS"); peers != "" {
		config.BootstrapPeers = strings.Split(peers, ",")
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		config.LogLevel = lvl
	}
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	config.ExecutorKey = os.Getenv("EXECUTOR_KEY")
	if config.ExecutorKey == "" {
		log.Fatal().Msg("EXECUTOR_KEY is required; generate one with cmd/keygen")
	}
	exec, err := executor.LoadExecutor(config.ExecutorKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load executor key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := p2p.NewNode(ctx, config.ProverPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create P2P node")
	}
	defer node.Close()

	for _, addr := range config.BootstrapPeers {
		if _, err := node.Connect(ctx, addr); err != nil {
			log.Warn().Err(err).Str("peer", addr).Msg("Failed to connect to bootstrap peer")
		}
	}

	node.ServeProver(exec)
	log.Info().
		Str("executor", exec.Address().Hex()).
		Str("program", exec.Program().Hex()).
		Msg("Prover ready")

	if config.RPCPort != 0 {
		trusted := exec.Address()
		if config.TrustedExecutor != "" {
			if !common.IsHexAddress(config.TrustedExecutor) {
				log.Fatal().Str("value", config.TrustedExecutor).Msg("Invalid trusted executor address")
			}
			trusted = common.HexToAddress(config.TrustedExecutor)
		}

		registry, err := state.NewRegistry(config.MerkleTreeDepth, config.RootHistorySize)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create registry")
		}
		verifier := prover.NewProofVerifier(executor.NewVerifier(trusted), executor.ProgramID())

		server := rpc.NewServer(registry, verifier, config.RPCPort, config.VerifyConcurrency)
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start RPC server")
		}
		defer server.Stop()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down prover")
}
