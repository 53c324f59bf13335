package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"spendzk/pkg/core"
	"spendzk/pkg/executor"
	"spendzk/pkg/p2p"
	"spendzk/pkg/prover"
	"spendzk/pkg/spend"
	"spendzk/pkg/state"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	defaults := core.DefaultConfig()

	app := &cli.App{
		Name:  "spend",
		Usage: "prove and verify a private note spend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "wallet", Value: "0x0101010101010101010101010101010101010101", Usage: "wallet address owning the note"},
			&cli.Uint64Flag{Name: "amount", Value: 1_000_000, Usage: "amount to spend"},
			&cli.IntFlag{Name: "depth", Value: defaults.MerkleTreeDepth, EnvVars: []string{"MERKLE_TREE_DEPTH"}, Usage: "note tree depth"},
			&cli.IntFlag{Name: "decoys", Value: 3, Usage: "other notes inserted before ours"},
			&cli.StringFlag{Name: "prover", EnvVars: []string{"PROVER_ADDR"}, Usage: "multiaddr of a remote prover; empty proves locally"},
			&cli.StringFlag{Name: "executor-key", EnvVars: []string{"EXECUTOR_KEY"}, Usage: "hex key for the local executor; empty generates one"},
			&cli.StringFlag{Name: "trusted-executor", EnvVars: []string{"TRUSTED_EXECUTOR"}, Usage: "executor address to trust; defaults to the local executor"},
			&cli.StringFlag{Name: "log-level", Value: defaults.LogLevel, EnvVars: []string{"LOG_LEVEL"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Spend failed")
	}
}

func run(c *cli.Context) error {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	if !common.IsHexAddress(c.String("wallet")) {
		return fmt.Errorf("invalid wallet address %q", c.String("wallet"))
	}
	wallet := common.HexToAddress(c.String("wallet"))

	ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
	defer cancel()

	registry, err := state.NewRegistry(c.Int("depth"), core.DefaultConfig().RootHistorySize)
	if err != nil {
		return err
	}
	for i := 0; i < c.Int("decoys"); i++ {
		var decoy common.Address
		decoy[19] = byte(i + 1)
		note, err := spend.NewNote(decoy, uint64(i+1)*100, nil, time.Now())
		if err != nil {
			return err
		}
		if _, err := registry.Insert(note); err != nil {
			return err
		}
	}

	backend, trusted, err := buildBackend(ctx, c)
	if err != nil {
		return err
	}

	generator := prover.NewProofGenerator(backend)
	log.Info().Msg("Generating proof...")
	proof, err := generator.ProveAnchored(ctx, wallet, c.Uint64("amount"), registry)
	if err != nil {
		return err
	}

	fmt.Println("Proof generated successfully!")
	fmt.Printf("Merkle root: 0x%x\n", proof.MerkleRoot)
	fmt.Printf("Nullifier:   0x%x\n", proof.Nullifier)
	fmt.Printf("Amount:      %d\n", proof.Amount)

	verifier := prover.NewProofVerifier(executor.NewVerifier(trusted), executor.ProgramID())
	log.Info().Msg("Verifying proof...")
	if err := registry.Settle(ctx, verifier, proof); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	fmt.Println("Proof verified successfully!")

	if err := registry.Settle(ctx, verifier, proof); !errors.Is(err, state.ErrDoubleSpend) {
		return fmt.Errorf("replayed proof was not rejected: %v", err)
	}
	fmt.Println("Replay rejected as double spend.")
	return nil
}

// buildBackend returns the proving backend and the executor address to trust
func buildBackend(ctx context.Context, c *cli.Context) (prover.Prover, common.Address, error) {
	var trusted common.Address
	if v := c.String("trusted-executor"); v != "" {
		if !common.IsHexAddress(v) {
			return nil, trusted, fmt.Errorf("invalid trusted executor %q", v)
		}
		trusted = common.HexToAddress(v)
	}

	if addr := c.String("prover"); addr != "" {
		if trusted == (common.Address{}) {
			return nil, trusted, errors.New("--trusted-executor is required with a remote prover")
		}
		node, err := p2p.NewNodeOnAddr(ctx, "/ip4/127.0.0.1/tcp/0")
		if err != nil {
			return nil, trusted, err
		}
		peerID, err := node.Connect(ctx, addr)
		if err != nil {
			return nil, trusted, err
		}
		return p2p.NewRemoteProver(node, peerID), trusted, nil
	}

	var exec *executor.Executor
	if key := c.String("executor-key"); key != "" {
		var err error
		if exec, err = executor.LoadExecutor(key); err != nil {
			return nil, trusted, err
		}
	} else {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, trusted, err
		}
		exec = executor.NewExecutor(key)
	}
	if trusted == (common.Address{}) {
		trusted = exec.Address()
	}
	return exec, trusted, nil
}
