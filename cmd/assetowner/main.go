package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"anonycast/assetowner"
	"anonycast/client"
	"anonycast/crypto"
)

type Config struct {
	PrivateKeyFile      string
	Deaddrops           string
	AllowedSenderKeys   string
	AllowedReceiverKeys string
	Interval            time.Duration
}

func main() {
	cfg := parseFlags()

	privateKey, err := loadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		log.Fatalf("load private key: %v", err)
	}

	addrs, err := parseDeaddropAddrs(cfg.Deaddrops)
	if err != nil {
		log.Fatalf("parse deaddrop addresses: %v", err)
	}

	senderKeys, err := loadRingPublicKeys(cfg.AllowedSenderKeys)
	if err != nil {
		log.Fatalf("load allowed sender keys: %v", err)
	}
	receiverKeys, err := loadPublicKeys(cfg.AllowedReceiverKeys)
	if err != nil {
		log.Fatalf("load allowed receiver keys: %v", err)
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

	err = assetowner.Run(ctx, assetowner.Config{
		PrivateKey:          privateKey,
		DeaddropAddresses:   addrs,
		AllowedSenderKeys:   senderKeys,
		AllowedReceiverKeys: receiverKeys,
		Interval:            cfg.Interval,
	})
	if err != nil {
		log.Fatalf("run asset owner: %v", err)
	}
}

func parseFlags() *Config {
	privateKeyFile := flag.String("key", "", "path to the asset owner's RSA private key file")
	deaddrops := flag.String("deaddrops", "", "comma-separated deaddrop addresses (host:port)")
	allowedSenderKeys := flag.String("sender-keys", "", "comma-separated paths to allowed ring public key files")
	allowedReceiverKeys := flag.String("receiver-keys", "", "comma-separated paths to allowed RSA public key files")
	interval := flag.Duration("interval", 2*time.Second, "how often to rebuild and broadcast the key update")

	flag.Parse()

	return &Config{
		PrivateKeyFile:      *privateKeyFile,
		Deaddrops:           *deaddrops,
		AllowedSenderKeys:   *allowedSenderKeys,
		AllowedReceiverKeys: *allowedReceiverKeys,
		Interval:            *interval,
	}
}

func parseDeaddropAddrs(s string) ([]client.DeaddropAddr, error) {
	var addrs []client.DeaddropAddr
	for _, part := range splitNonEmpty(s) {
		addrs = append(addrs, client.TCPAddr(part))
	}
	return addrs, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	return crypto.ParsePrivateKey(string(data))
}

func loadPublicKeys(paths string) ([]crypto.PublicKey, error) {
	var keys []crypto.PublicKey
	for _, path := range splitNonEmpty(paths) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		key, err := crypto.ParsePublicKey(string(data))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func loadRingPublicKeys(paths string) ([]crypto.RingPublicKey, error) {
	var keys []crypto.RingPublicKey
	for _, path := range splitNonEmpty(paths) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		key, err := crypto.ParseRingPublicKey(string(data))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
