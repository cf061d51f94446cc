package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"anonycast/client"
	"anonycast/crypto"
	"anonycast/protocol"
	"anonycast/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var store *storage.Store
	if dataDir := os.Getenv("ANONYCAST_DATA_DIR"); dataDir != "" {
		var passphrase []byte
		if p := os.Getenv("ANONYCAST_PASSPHRASE"); p != "" {
			passphrase = []byte(p)
		}
		s, err := storage.Open(dataDir, passphrase)
		if err != nil {
			log.Fatalf("open local keystore: %v", err)
		}
		defer s.Close()
		store = s
	}

	cfg, err := loadConfigFromEnv(store)
	if err != nil {
		log.Fatalf("load client config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := client.New(ctx, cfg)
	if err != nil {
		log.Fatalf("connect to deaddrops: %v", err)
	}
	defer c.Close()

	switch os.Args[1] {
	case "send":
		send(ctx, c, os.Args[2:])
	case "fetch":
		fetch(ctx, c, os.Args[2:])
	default:
		fmt.Printf("unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  client send <topic> <message>          - publish a message under topic")
	fmt.Println("  client fetch <topic> [since-round]      - retrieve and verify messages under topic")
	fmt.Println()
	fmt.Println("Configuration is read from environment variables:")
	fmt.Println("  ANONYCAST_MODE, ANONYCAST_DEADDROPS, ANONYCAST_PRIVATE_KEY,")
	fmt.Println("  ANONYCAST_RING_PRIVATE_KEY, ANONYCAST_RING, ANONYCAST_RECEIVER_KEYS,")
	fmt.Println("  ANONYCAST_DIFFICULTY, ANONYCAST_ACCEPTANCE_WINDOW, ANONYCAST_ASSET_OWNER_KEY,")
	fmt.Println("  ANONYCAST_DRAND_CHAIN, ANONYCAST_DRAND_URL")
	fmt.Println()
	fmt.Println("  ANONYCAST_DATA_DIR, if set, persists generated keys in a local keystore")
	fmt.Println("  so they survive across runs. ANONYCAST_PRIVATE_KEY/ANONYCAST_RING_PRIVATE_KEY")
	fmt.Println("  take precedence over the keystore when set. ANONYCAST_PASSPHRASE encrypts")
	fmt.Println("  the keystore at rest.")
}

func send(ctx context.Context, c *client.Client, args []string) {
	if len(args) < 2 {
		log.Fatalf("usage: client send <topic> <message>")
	}
	topic := args[0]
	message := strings.Join(args[1:], " ")

	if err := c.SendMessage(ctx, topic, []byte(message)); err != nil {
		log.Fatalf("send message: %v", err)
	}
	log.Printf("published to topic %q", topic)
}

func fetch(ctx context.Context, c *client.Client, args []string) {
	if len(args) < 1 {
		log.Fatalf("usage: client fetch <topic> [since-round]")
	}
	topic := args[0]
	var since uint64
	if len(args) > 1 {
		parsed, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			log.Fatalf("parse since-round: %v", err)
		}
		since = parsed
	}

	docs, err := c.FetchMessages(ctx, topic, since)
	if err != nil {
		log.Fatalf("fetch messages: %v", err)
	}

	for _, doc := range docs {
		printDocument(doc)
	}
	log.Printf("retrieved %d document(s) under topic %q", len(docs), topic)
}

func printDocument(doc protocol.SignedDocument) {
	if doc.Content.Content.Plaintext != nil {
		fmt.Printf("[round %d] %s\n", doc.Content.Id.Round, string(*doc.Content.Content.Plaintext))
		return
	}
	fmt.Printf("[round %d] <encrypted, not addressed to this key>\n", doc.Content.Id.Round)
}

func loadConfigFromEnv(store *storage.Store) (client.Config, error) {
	mode, err := protocol.ParseModeOfOperation(envOr("ANONYCAST_MODE", "open"))
	if err != nil {
		return client.Config{}, err
	}

	addrs, err := parseDeaddropAddrs(os.Getenv("ANONYCAST_DEADDROPS"))
	if err != nil {
		return client.Config{}, err
	}
	if len(addrs) == 0 {
		return client.Config{}, fmt.Errorf("ANONYCAST_DEADDROPS must name at least one deaddrop")
	}

	cfg := client.Config{
		Mode:              mode,
		DeaddropAddresses: addrs,
		Difficulty:        uint8(envUint(os.Getenv("ANONYCAST_DIFFICULTY"), 20)),
		AcceptanceWindow:  envUint(os.Getenv("ANONYCAST_ACCEPTANCE_WINDOW"), 5),
		DrandChain:        os.Getenv("ANONYCAST_DRAND_CHAIN"),
		DrandAPIURL:       os.Getenv("ANONYCAST_DRAND_URL"),
	}

	if path := os.Getenv("ANONYCAST_PRIVATE_KEY"); path != "" {
		key, err := loadFile(path, crypto.ParsePrivateKey)
		if err != nil {
			return client.Config{}, fmt.Errorf("load private key: %w", err)
		}
		cfg.PrivateKey = &key
	} else if store != nil {
		key, err := loadOrGeneratePrivateKey(store)
		if err != nil {
			return client.Config{}, fmt.Errorf("load private key from keystore: %w", err)
		}
		cfg.PrivateKey = &key
	}
	if path := os.Getenv("ANONYCAST_RING_PRIVATE_KEY"); path != "" {
		key, err := loadFile(path, crypto.ParseRingPrivateKey)
		if err != nil {
			return client.Config{}, fmt.Errorf("load ring private key: %w", err)
		}
		cfg.RingPrivateKey = &key
	} else if store != nil && cfg.Mode.RequiresRingSignature() {
		key, err := loadOrGenerateRingPrivateKey(store)
		if err != nil {
			return client.Config{}, fmt.Errorf("load ring private key from keystore: %w", err)
		}
		cfg.RingPrivateKey = &key
	}
	if paths := os.Getenv("ANONYCAST_RING"); paths != "" {
		keys, err := loadEachFile(paths, crypto.ParseRingPublicKey)
		if err != nil {
			return client.Config{}, fmt.Errorf("load ring: %w", err)
		}
		ring := crypto.NewRing(keys)
		cfg.Ring = &ring
	}
	if paths := os.Getenv("ANONYCAST_RECEIVER_KEYS"); paths != "" {
		keys, err := loadEachFile(paths, crypto.ParsePublicKey)
		if err != nil {
			return client.Config{}, fmt.Errorf("load receiver keys: %w", err)
		}
		cfg.ReceiverKeys = keys
	}
	if path := os.Getenv("ANONYCAST_ASSET_OWNER_KEY"); path != "" {
		key, err := loadFile(path, crypto.ParsePublicKey)
		if err != nil {
			return client.Config{}, fmt.Errorf("load asset owner key: %w", err)
		}
		cfg.AssetOwnerPublicKey = &key
	}

	return cfg, nil
}

// loadOrGeneratePrivateKey returns the client's persisted signing key,
// generating and saving a fresh one the first time the keystore is used.
func loadOrGeneratePrivateKey(store *storage.Store) (crypto.PrivateKey, error) {
	key, found, err := store.LoadPrivateKey()
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	if found {
		return key, nil
	}
	_, key, err = crypto.Generate()
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("generate private key: %w", err)
	}
	if err := store.SavePrivateKey(key); err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("save private key: %w", err)
	}
	return key, nil
}

// loadOrGenerateRingPrivateKey returns the client's persisted ring signing
// key, generating and saving a fresh one the first time the keystore is used.
func loadOrGenerateRingPrivateKey(store *storage.Store) (crypto.RingPrivateKey, error) {
	key, found, err := store.LoadRingPrivateKey()
	if err != nil {
		return crypto.RingPrivateKey{}, err
	}
	if found {
		return key, nil
	}
	_, key, err = crypto.RingGenerate()
	if err != nil {
		return crypto.RingPrivateKey{}, fmt.Errorf("generate ring private key: %w", err)
	}
	if err := store.SaveRingPrivateKey(key); err != nil {
		return crypto.RingPrivateKey{}, fmt.Errorf("save ring private key: %w", err)
	}
	return key, nil
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

func loadFile[T any](path string, parse func(string) (T, error)) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}
	return parse(strings.TrimSpace(string(data)))
}

func loadEachFile[T any](paths string, parse func(string) (T, error)) ([]T, error) {
	var out []T
	for _, path := range splitNonEmpty(paths) {
		v, err := loadFile(path, parse)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(s string, fallback uint64) uint64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
