package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spendzk/pkg/executor"
)

func main() {
	// Configure logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	flag.Parse()

	// Generate a new private key
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate private key")
	}

	// Convert to hex string (without 0x prefix)
	privateKeyHex := hex.EncodeToString(crypto.FromECDSA(privateKey))

	exec := executor.NewExecutor(privateKey)

	fmt.Println("Generated new executor key")
	fmt.Println("--------------------------")
	fmt.Printf("Private Key: %s\n", privateKeyHex)
	fmt.Printf("Address:     %s\n", exec.Address().Hex())
	fmt.Printf("Program ID:  %s\n", exec.Program().Hex())
	fmt.Println("\nRun a prover with this key:")
	fmt.Printf("EXECUTOR_KEY=%s PROVER_PORT=9000 go run .\n", privateKeyHex)
	fmt.Println("\nVerifiers trust it with:")
	fmt.Printf("go run ./cmd/spend --trusted-executor %s ...\n", exec.Address().Hex())
}
