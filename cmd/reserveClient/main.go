package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/client"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/config"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "reserve-client",
		Usage: "Proof of Reserve audit client",
		Description: `A client for checking that a user's balance is included in the published merkle root.

This client can:
- Fetch the currently published merkle root
- Fetch a user's inclusion proof
- Verify a proof locally with the configured tags, without trusting the server`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Reserve server URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{config.EnvReserveClientServerURL},
			},
			&cli.StringFlag{
				Name:    "leaf-tag",
				Usage:   "Tag for hashing leaves (must match the server)",
				Value:   config.DefaultLeafTag,
				EnvVars: []string{config.EnvReserveLeafTag},
			},
			&cli.StringFlag{
				Name:    "branch-tag",
				Usage:   "Tag for hashing branches (must match the server)",
				Value:   config.DefaultBranchTag,
				EnvVars: []string{config.EnvReserveBranchTag},
			},
			&cli.IntFlag{
				Name:    "timeout",
				Usage:   "Request timeout in seconds",
				Value:   10,
				EnvVars: []string{config.EnvReserveClientTimeoutSec},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvReserveVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "root",
				Usage:  "Print the published merkle root",
				Action: rootCommand,
			},
			{
				Name:  "proof",
				Usage: "Print the inclusion proof of a user",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "user-id",
						Usage:    "User ID",
						Required: true,
					},
				},
				Action: proofCommand,
			},
			{
				Name:  "verify",
				Usage: "Fetch a user's proof and verify it locally against the published root",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "user-id",
						Usage:    "User ID",
						Required: true,
					},
				},
				Action: verifyCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// createClient creates a new reserve client from CLI context
func createClient(c *cli.Context) (*client.ReserveClient, error) {
	cfg := &config.ReserveClientConfig{
		ServerURL:      c.String("server-url"),
		LeafTag:        c.String("leaf-tag"),
		BranchTag:      c.String("branch-tag"),
		TimeoutSeconds: c.Int("timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zapLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return client.NewReserveClient(&client.ClientConfig{
		ServerURL: cfg.ServerURL,
		LeafTag:   cfg.LeafTag,
		BranchTag: cfg.BranchTag,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:    zapLogger,
	})
}

func rootCommand(c *cli.Context) error {
	rc, err := createClient(c)
	if err != nil {
		return err
	}

	root, err := rc.GetRoot(c.Context)
	if err != nil {
		return fmt.Errorf("failed to get root: %w", err)
	}

	fmt.Printf("Root:       %s\n", root.RootHash)
	fmt.Printf("Version:    %s\n", root.Version)
	fmt.Printf("Leaf count: %d\n", root.LeafCount)
	fmt.Printf("Built at:   %s\n", time.Unix(root.BuiltAt, 0).UTC().Format(time.RFC3339))
	return nil
}

func proofCommand(c *cli.Context) error {
	rc, err := createClient(c)
	if err != nil {
		return err
	}

	proof, err := rc.GetProof(c.Context, c.Int64("user-id"))
	if err != nil {
		return fmt.Errorf("failed to get proof: %w", err)
	}

	out, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode proof: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func verifyCommand(c *cli.Context) error {
	rc, err := createClient(c)
	if err != nil {
		return err
	}

	userID := c.Int64("user-id")
	result, err := rc.FetchAndVerify(c.Context, userID)
	if err != nil {
		return fmt.Errorf("failed to verify user %d: %w", userID, err)
	}

	fmt.Printf("User:    %d\n", result.Record.UserID)
	fmt.Printf("Balance: %d\n", result.Record.Balance)
	fmt.Printf("Root:    %s (version %s)\n", result.RootHash, result.Version)
	fmt.Printf("Path:    %d entries\n", result.PathLength)

	if !result.Valid {
		return cli.Exit("✗ Proof is INVALID: balance is not included in the published root", 1)
	}
	fmt.Println("✓ Proof is valid: balance is included in the published root")
	return nil
}
