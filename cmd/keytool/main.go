package main

import (
	"fmt"
	"log"
	"os"

	"anonycast/crypto"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "generate":
		generateKeyPair()
	case "ring-generate":
		generateRingKeyPair()
	case "pubkey":
		if len(os.Args) < 3 {
			log.Fatalf("usage: keytool pubkey <private-key-file>")
		}
		showPublicKey(os.Args[2])
	case "ring-pubkey":
		if len(os.Args) < 3 {
			log.Fatalf("usage: keytool ring-pubkey <ring-private-key-file>")
		}
		showRingPublicKey(os.Args[2])
	default:
		fmt.Printf("unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  keytool generate                     - generate an RSA key pair, print hex-encoded private and public keys")
	fmt.Println("  keytool ring-generate                 - generate a ring (BLSAG) key pair")
	fmt.Println("  keytool pubkey <private-key-file>     - derive the public key for an RSA private key file")
	fmt.Println("  keytool ring-pubkey <private-key-file> - derive the public key for a ring private key file")
}

func generateKeyPair() {
	pub, priv, err := crypto.Generate()
	if err != nil {
		log.Fatalf("generate key pair: %v", err)
	}
	fmt.Printf("private: %s\n", priv.String())
	fmt.Printf("public:  %s\n", pub.String())
}

func generateRingKeyPair() {
	pub, priv, err := crypto.RingGenerate()
	if err != nil {
		log.Fatalf("generate ring key pair: %v", err)
	}
	fmt.Printf("private: %s\n", priv.String())
	fmt.Printf("public:  %s\n", pub.String())
}

func showPublicKey(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read private key file: %v", err)
	}
	priv, err := crypto.ParsePrivateKey(string(data))
	if err != nil {
		log.Fatalf("parse private key: %v", err)
	}
	fmt.Println(priv.PublicKey().String())
}

func showRingPublicKey(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read ring private key file: %v", err)
	}
	priv, err := crypto.ParseRingPrivateKey(string(data))
	if err != nil {
		log.Fatalf("parse ring private key: %v", err)
	}
	fmt.Println(priv.PublicKey().String())
}
