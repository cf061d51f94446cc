package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"anonycast/crypto"
	"anonycast/deaddrop"
	"anonycast/protocol"
)

type Config struct {
	Mode             string
	PrivateKeyFile   string
	Address          string
	Difficulty       int
	AcceptanceWindow uint64
	AssetOwnerKey    string
	Workers          int
	DrandAPIURL      string
}

func main() {
	cfg := parseFlags()

	mode, err := protocol.ParseModeOfOperation(cfg.Mode)
	if err != nil {
		log.Fatalf("invalid mode: %v", err)
	}

	privateKey, err := loadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		log.Fatalf("load private key: %v", err)
	}

	var assetOwnerKey *crypto.PublicKey
	if cfg.AssetOwnerKey != "" {
		key, err := loadPublicKey(cfg.AssetOwnerKey)
		if err != nil {
			log.Fatalf("load asset owner key: %v", err)
		}
		assetOwnerKey = &key
	}

	server, err := deaddrop.New(deaddrop.Config{
		Mode:             mode,
		PrivateKey:       privateKey,
		Address:          cfg.Address,
		Difficulty:       uint8(cfg.Difficulty),
		AcceptanceWindow: cfg.AcceptanceWindow,
		AssetOwnerKey:    assetOwnerKey,
		Workers:          cfg.Workers,
		DrandAPIURL:      cfg.DrandAPIURL,
	})
	if err != nil {
		log.Fatalf("create deaddrop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down...")
		cancel()
	}()

	if err := server.Serve(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func parseFlags() *Config {
	mode := flag.String("mode", "open", "mode of operation: open, sender-restricted, receiver-restricted, fully-restricted")
	privateKeyFile := flag.String("key", "", "path to this deaddrop's RSA private key file")
	address := flag.String("address", ":9100", "address to listen on")
	difficulty := flag.Int("difficulty", 20, "required proof-of-work difficulty in bits")
	acceptanceWindow := flag.Uint64("acceptance-window", 5, "number of drand rounds a request or document stays fresh")
	assetOwnerKey := flag.String("asset-owner-key", "", "path to the asset owner's RSA public key file (required for restricted modes)")
	workers := flag.Int("workers", 0, "number of crypto worker goroutines (0 = GOMAXPROCS)")
	drandAPIURL := flag.String("drand-url", "", "drand HTTP API base URL (empty uses the public default)")

	flag.Parse()

	return &Config{
		Mode:             *mode,
		PrivateKeyFile:   *privateKeyFile,
		Address:          *address,
		Difficulty:       *difficulty,
		AcceptanceWindow: *acceptanceWindow,
		AssetOwnerKey:    *assetOwnerKey,
		Workers:          *workers,
		DrandAPIURL:      *drandAPIURL,
	}
}

func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	return crypto.ParsePrivateKey(string(data))
}

func loadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.PublicKey{}, err
	}
	return crypto.ParsePublicKey(string(data))
}
