// Package deaddrop implements an anonycast deaddrop: an untrusted relay
// that accepts signed documents from clients and serves them back out again,
// enforcing whatever publish/retrieve restrictions its mode of operation
// and asset-owner key update call for.
package deaddrop

import (
	"sync"

	"anonycast/crypto"
	"anonycast/document"
	"anonycast/protocol"
)

// Config configures a single deaddrop server.
type Config struct {
	Mode             protocol.ModeOfOperation
	PrivateKey       crypto.PrivateKey
	Address          string
	Difficulty       uint8
	AcceptanceWindow uint64
	AssetOwnerKey    *crypto.PublicKey
	AssetOwnerUpdate *protocol.Signed[protocol.UpdateAllowedKeys]
	Workers          int
	DrandAPIURL      string
}

// state is the mutable, lock-protected data a deaddrop accumulates at
// runtime: published documents and the asset owner's latest key update.
// It is never held across a worker dispatch or network I/O.
type state struct {
	mu                    sync.RWMutex
	publishedDocuments    map[document.Id]protocol.SignedDocument
	allowedSenderRing     crypto.Ring
	allowedReceiverKeys   []crypto.PublicKey
	keysUpdateAssetOwner  *protocol.Signed[protocol.UpdateAllowedKeys]
}

func newState() *state {
	return &state{
		publishedDocuments: make(map[document.Id]protocol.SignedDocument),
	}
}

func (s *state) applyKeyUpdate(update protocol.Signed[protocol.UpdateAllowedKeys]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedSenderRing = crypto.NewRing(update.Content.AllowedSenderKeys)
	s.allowedReceiverKeys = update.Content.AllowedReceiverKeys
	s.keysUpdateAssetOwner = &update
}

func (s *state) senderRing() crypto.Ring {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowedSenderRing
}

func (s *state) latestKeyUpdate() *protocol.Signed[protocol.UpdateAllowedKeys] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keysUpdateAssetOwner
}

func (s *state) publish(doc protocol.SignedDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishedDocuments[doc.Content.Id] = doc
}

func (s *state) documentIdsSince(round uint64) []document.Id {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]document.Id, 0, len(s.publishedDocuments))
	for _, doc := range s.publishedDocuments {
		if doc.Content.Id.Round >= round {
			ids = append(ids, doc.Content.Id)
		}
	}
	return ids
}

func (s *state) documentsByIds(ids []document.Id) ([]protocol.SignedDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]protocol.SignedDocument, 0, len(ids))
	for _, id := range ids {
		doc, ok := s.publishedDocuments[id]
		if !ok {
			return nil, false
		}
		docs = append(docs, doc)
	}
	return docs, true
}
