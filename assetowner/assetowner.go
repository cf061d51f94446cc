// Package assetowner implements the asset owner: the trust anchor that
// periodically signs and broadcasts the set of keys allowed to publish and
// receive documents in a sender- or receiver-restricted deployment.
package assetowner

import (
	"context"
	"fmt"
	"log"
	"time"

	"anonycast/client"
	"anonycast/crypto"
	"anonycast/drand"
	"anonycast/protocol"
)

// Config configures the asset owner loop.
type Config struct {
	PrivateKey          crypto.PrivateKey
	DeaddropAddresses   []client.DeaddropAddr
	AllowedSenderKeys   []crypto.RingPublicKey
	AllowedReceiverKeys []crypto.PublicKey
	Interval            time.Duration
}

// CreateUpdateMessage builds a freshly signed key update anchored to the
// current drand round.
func CreateUpdateMessage(ctx context.Context, key crypto.PrivateKey, allowedSenderKeys []crypto.RingPublicKey, allowedReceiverKeys []crypto.PublicKey) (protocol.Signed[protocol.UpdateAllowedKeys], error) {
	beacon, err := drand.GetBeaconFromFirstChain(ctx)
	if err != nil {
		return protocol.Signed[protocol.UpdateAllowedKeys]{}, fmt.Errorf("fetch current beacon: %w", err)
	}
	update := protocol.UpdateAllowedKeys{
		AllowedSenderKeys:   allowedSenderKeys,
		AllowedReceiverKeys: allowedReceiverKeys,
		Beacon:              beacon,
	}
	return protocol.Sign(key, update)
}

// Run connects to every configured deaddrop and, every cfg.Interval,
// rebuilds a fresh key update anchored to the latest drand round and
// broadcasts it. Each tick fetches its own beacon rather than resending a
// stale copy, so a deaddrop's acceptance-window freshness check never
// starves on a long-lived asset owner process.
func Run(ctx context.Context, cfg Config) error {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	log.Printf("asset owner targeting %d deaddrops", len(cfg.DeaddropAddresses))

	conns := make([]*client.DeaddropConn, 0, len(cfg.DeaddropAddresses))
	for _, addr := range cfg.DeaddropAddresses {
		conn, err := client.Connect(ctx, addr)
		if err != nil {
			return fmt.Errorf("connect to deaddrop %s: %w", addr, err)
		}
		conns = append(conns, conn)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := broadcastUpdate(ctx, cfg, conns); err != nil {
			log.Printf("broadcast key update: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func broadcastUpdate(ctx context.Context, cfg Config, conns []*client.DeaddropConn) error {
	beacon, err := drand.GetBeaconFromFirstChain(ctx)
	if err != nil {
		return fmt.Errorf("fetch current beacon: %w", err)
	}
	update := protocol.UpdateAllowedKeys{
		AllowedSenderKeys:   cfg.AllowedSenderKeys,
		AllowedReceiverKeys: cfg.AllowedReceiverKeys,
		Beacon:              beacon,
	}
	message, err := protocol.NewUpdateAllowedKeysMessage(update)
	if err != nil {
		return fmt.Errorf("wrap key update: %w", err)
	}
	signed, err := protocol.Sign(cfg.PrivateKey, message)
	if err != nil {
		return fmt.Errorf("sign key update: %w", err)
	}

	log.Printf("sending allowed keys update (round %d) to %d deaddrops", beacon.RoundNumber, len(conns))
	for i, conn := range conns {
		if err := conn.Send(signed); err != nil {
			log.Printf("send update to deaddrop %d: %v", i, err)
		}
	}
	return nil
}
