package client

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"anonycast/crypto"
	"anonycast/document"
	"anonycast/drand"
	"anonycast/protocol"
	"anonycast/puzzle"
)

// Config configures a Client. Which of PrivateKey / RingPrivateKey+Ring is
// required depends on Mode. ReceiverKeys is not read by Client: encrypted
// documents are addressed to the receiver keys of the latest asset-owner key
// update.
type Config struct {
	Mode                protocol.ModeOfOperation
	PrivateKey          *crypto.PrivateKey
	RingPrivateKey      *crypto.RingPrivateKey
	Ring                *crypto.Ring
	ReceiverKeys        []crypto.PublicKey
	DeaddropAddresses   []DeaddropAddr
	Difficulty          uint8
	AcceptanceWindow    uint64
	AssetOwnerPublicKey *crypto.PublicKey
	DrandChain          string
	DrandAPIURL         string
}

// Client is a connected anonycast client: it holds one open connection per
// configured deaddrop and the most recently fetched sender/receiver key
// sets (for sender- or receiver-restricted modes).
type Client struct {
	cfg        Config
	drandChain string
	drand      drand.Source
	deaddrops  []*DeaddropConn

	mu           sync.Mutex
	senderRing   crypto.Ring
	receiverKeys []crypto.PublicKey
}

// New connects to every configured deaddrop and resolves the drand chain to
// anchor documents to.
func New(ctx context.Context, cfg Config) (*Client, error) {
	conns, err := connectAll(ctx, cfg.DeaddropAddresses)
	if err != nil {
		return nil, err
	}

	apiURL := cfg.DrandAPIURL
	if apiURL == "" {
		apiURL = drand.DefaultAPIURL
	}
	drandClient := drand.NewCachingClient(apiURL)

	chain := cfg.DrandChain
	if chain == "" {
		chains, err := drandClient.ChainList(ctx)
		if err != nil {
			return nil, fmt.Errorf("list drand chains: %w", err)
		}
		if len(chains) == 0 {
			return nil, fmt.Errorf("no drand chains found")
		}
		sort.Strings(chains)
		chain = chains[0]
	}
	log.Printf("using drand chain %s", chain)

	return &Client{
		cfg:        cfg,
		drandChain: chain,
		drand:      drandClient,
		deaddrops:  conns,
	}, nil
}

func connectAll(ctx context.Context, addrs []DeaddropAddr) ([]*DeaddropConn, error) {
	type result struct {
		conn *DeaddropConn
		err  error
	}
	results := make([]result, len(addrs))
	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func(i int, addr DeaddropAddr) {
			defer wg.Done()
			conn, err := Connect(ctx, addr)
			results[i] = result{conn, err}
		}(i, addr)
	}
	wg.Wait()

	conns := make([]*DeaddropConn, len(addrs))
	for i, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("connect to deaddrop %s: %w", addrs[i], r.err)
		}
		conns[i] = r.conn
	}
	return conns, nil
}

func (c *Client) Close() {
	for _, conn := range c.deaddrops {
		conn.Close()
	}
}

// PreparedMessage is a fully signed PublishDocument message, ready to send
// without any further crypto work.
type PreparedMessage struct {
	signed protocol.Signed[protocol.Message]
}

// PrepareMessage builds and signs a document for topic without sending it,
// so the signing work is done before SendPreparedMessage. It prepares one
// document per call, and each call fetches its own chain info and latest
// beacon from the client's drand source.
func (c *Client) PrepareMessage(ctx context.Context, topic string, data []byte) (PreparedMessage, error) {
	docDrand, err := c.createDocumentDrand(ctx)
	if err != nil {
		return PreparedMessage{}, err
	}
	signed, err := c.createMessage(topic, data, docDrand)
	if err != nil {
		return PreparedMessage{}, err
	}
	return PreparedMessage{signed: signed}, nil
}

// SendMessage refreshes the client's key sets (for restricted modes),
// builds and signs a document for topic, and publishes it to every
// configured deaddrop.
func (c *Client) SendMessage(ctx context.Context, topic string, data []byte) error {
	if err := c.UpdateKeys(ctx); err != nil {
		return err
	}
	docDrand, err := c.createDocumentDrand(ctx)
	if err != nil {
		return err
	}
	signed, err := c.createMessage(topic, data, docDrand)
	if err != nil {
		return err
	}
	return c.broadcastPublish(ctx, signed)
}

// SendPreparedMessage publishes a message built earlier by PrepareMessage.
func (c *Client) SendPreparedMessage(ctx context.Context, msg PreparedMessage) error {
	return c.broadcastPublish(ctx, msg.signed)
}

func (c *Client) broadcastPublish(ctx context.Context, message protocol.Signed[protocol.Message]) error {
	var wg sync.WaitGroup
	errs := make([]error, len(c.deaddrops))
	for i, conn := range c.deaddrops {
		wg.Add(1)
		go func(i int, conn *DeaddropConn) {
			defer wg.Done()
			response, err := SendAndRead[protocol.Signed[protocol.Message]](conn, message)
			if err != nil {
				errs[i] = fmt.Errorf("publish to deaddrop %d: %w", i, err)
				return
			}
			if response.Content.Type != protocol.MessageTypeSuccess {
				errs[i] = fmt.Errorf("publish to deaddrop %d: expected success, got %s", i, response.Content.Type)
			}
		}(i, conn)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateKeys fetches the asset owner's latest key update from the first
// configured deaddrop and, once its signature is verified, replaces the
// client's sender ring and receiver keys. It is a no-op in Open mode, which
// has no asset owner.
func (c *Client) UpdateKeys(ctx context.Context) error {
	if c.cfg.Mode == protocol.Open {
		return nil
	}

	request, err := c.signMessage(protocol.NewRetrieveKeysMessage())
	if err != nil {
		return err
	}
	update, err := SendAndRead[protocol.Signed[protocol.UpdateAllowedKeys]](c.deaddrops[0], request)
	if err != nil {
		return fmt.Errorf("fetch key update: %w", err)
	}
	return c.handleKeyUpdate(update)
}

func (c *Client) handleKeyUpdate(update protocol.Signed[protocol.UpdateAllowedKeys]) error {
	if c.cfg.AssetOwnerPublicKey == nil {
		return fmt.Errorf("no asset owner public key configured, cannot trust key update")
	}
	if !update.VerifyWith(*c.cfg.AssetOwnerPublicKey) {
		return fmt.Errorf("deaddrop sent key update with invalid asset owner signature")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senderRing = crypto.NewRing(update.Content.AllowedSenderKeys)
	c.receiverKeys = update.Content.AllowedReceiverKeys
	return nil
}

func (c *Client) currentSenderRing() crypto.Ring {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.senderRing
}

func (c *Client) currentReceiverKeys() []crypto.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receiverKeys
}

// FetchMessages retrieves and verifies every document published under topic
// whose round is at or after the earlier of since and the latest beacon
// round, minus the acceptance window. A document that fails its signature, decryption,
// or freshness check is logged but still returned, so one bad document
// never hides the rest of the batch from the caller.
func (c *Client) FetchMessages(ctx context.Context, topic string, since uint64) ([]protocol.SignedDocument, error) {
	return c.fetchMessages(ctx, topic, since, true)
}

// FetchMessagesUnverified retrieves documents without checking their
// signatures, decrypting them, or checking freshness — useful for
// diagnostics against a deaddrop whose trust material isn't configured.
func (c *Client) FetchMessagesUnverified(ctx context.Context, topic string, since uint64) ([]protocol.SignedDocument, error) {
	return c.fetchMessages(ctx, topic, since, false)
}

func (c *Client) fetchMessages(ctx context.Context, topic string, since uint64, check bool) ([]protocol.SignedDocument, error) {
	if err := c.UpdateKeys(ctx); err != nil {
		return nil, err
	}

	latest, err := c.drand.ChainLatestRandomness(ctx, c.drandChain)
	if err != nil {
		return nil, fmt.Errorf("fetch latest beacon: %w", err)
	}
	currentRound := latest.RoundNumber

	sinceFloor := clampSub(currentRound, c.cfg.AcceptanceWindow)
	sinceAdjusted := clampSub(since, c.cfg.AcceptanceWindow)
	effectiveSince := sinceFloor
	if sinceAdjusted < effectiveSince {
		effectiveSince = sinceAdjusted
	}

	solution := puzzle.Solve(nil, latest, c.cfg.Difficulty)
	idsRequest := protocol.RetrieveDocumentIds{
		Topic:         topic,
		SinceRound:    effectiveSince,
		Beacon:        latest,
		Chain:         c.drandChain,
		NonceSolution: solution,
	}
	idsMessage, err := protocol.NewRetrieveDocumentIdsMessage(idsRequest)
	if err != nil {
		return nil, err
	}
	signedIdsRequest, err := c.signMessage(idsMessage)
	if err != nil {
		return nil, err
	}

	type idsResult struct {
		list protocol.DocumentIdList
		err  error
	}
	idsResults := make([]idsResult, len(c.deaddrops))
	var wg sync.WaitGroup
	for i, conn := range c.deaddrops {
		wg.Add(1)
		go func(i int, conn *DeaddropConn) {
			defer wg.Done()
			response, err := SendAndRead[protocol.Signed[protocol.Message]](conn, signedIdsRequest)
			if err != nil {
				idsResults[i] = idsResult{err: fmt.Errorf("fetch document ids from deaddrop %d: %w", i, err)}
				return
			}
			if check && !response.Verify() {
				idsResults[i] = idsResult{err: fmt.Errorf("invalid deaddrop response signature from deaddrop %d", i)}
				return
			}
			list, err := response.Content.AsDocumentIdList()
			if err != nil {
				idsResults[i] = idsResult{err: fmt.Errorf("unexpected deaddrop response to retrieve-document-ids from deaddrop %d: %w", i, err)}
				return
			}
			idsResults[i] = idsResult{list: list}
		}(i, conn)
	}
	wg.Wait()

	// Deaddrop affinity: a document id seen from more than one deaddrop is
	// attributed to whichever deaddrop's response is processed last in
	// iteration order, matching the reference client's HashMap::extend.
	idOwner := make(map[document.Id]int)
	var keyUpdates []protocol.Signed[protocol.UpdateAllowedKeys]
	for i, r := range idsResults {
		if r.err != nil {
			return nil, r.err
		}
		if r.list.AllowedSenderKeys != nil {
			keyUpdates = append(keyUpdates, *r.list.AllowedSenderKeys)
		}
		for _, id := range r.list.Ids {
			idOwner[id] = i
		}
	}
	for _, update := range keyUpdates {
		if err := c.handleKeyUpdate(update); err != nil {
			log.Printf("ignoring key update piggybacked on document id list: %v", err)
		}
	}

	idsByOwner := make(map[int][]document.Id)
	for id, owner := range idOwner {
		idsByOwner[owner] = append(idsByOwner[owner], id)
	}

	type docsResult struct {
		docs []protocol.SignedDocument
		ids  []document.Id
		err  error
	}
	docsResults := make([]docsResult, 0, len(idsByOwner))
	var docsMu sync.Mutex
	var docsWg sync.WaitGroup
	for owner, ids := range idsByOwner {
		if len(ids) == 0 {
			continue
		}
		docsWg.Add(1)
		go func(owner int, ids []document.Id) {
			defer docsWg.Done()
			req := protocol.RetrieveDocuments{
				Ids:           ids,
				Beacon:        latest,
				Chain:         c.drandChain,
				NonceSolution: solution,
			}
			reqMessage, err := protocol.NewRetrieveDocumentsMessage(req)
			if err != nil {
				docsMu.Lock()
				docsResults = append(docsResults, docsResult{err: err})
				docsMu.Unlock()
				return
			}
			signedReq, err := c.signMessage(reqMessage)
			if err != nil {
				docsMu.Lock()
				docsResults = append(docsResults, docsResult{err: err})
				docsMu.Unlock()
				return
			}
			response, err := SendAndRead[protocol.Signed[protocol.Message]](c.deaddrops[owner], signedReq)
			if err != nil {
				docsMu.Lock()
				docsResults = append(docsResults, docsResult{err: fmt.Errorf("fetch documents from deaddrop %d: %w", owner, err)})
				docsMu.Unlock()
				return
			}
			if check && !response.Verify() {
				docsMu.Lock()
				docsResults = append(docsResults, docsResult{err: fmt.Errorf("invalid deaddrop signature from deaddrop %d", owner)})
				docsMu.Unlock()
				return
			}
			list, err := response.Content.AsDocumentList()
			if err != nil {
				docsMu.Lock()
				docsResults = append(docsResults, docsResult{err: fmt.Errorf("unexpected deaddrop response to retrieve-documents from deaddrop %d: %w", owner, err)})
				docsMu.Unlock()
				return
			}
			docsMu.Lock()
			docsResults = append(docsResults, docsResult{docs: list.Documents, ids: ids})
			docsMu.Unlock()
		}(owner, ids)
	}
	docsWg.Wait()

	var documents []protocol.SignedDocument
	for _, r := range docsResults {
		if r.err != nil {
			return nil, r.err
		}
		for i := range r.docs {
			if r.docs[i].Content.Topic != topic {
				continue
			}
			if check {
				c.verifyAndDecryptDocument(ctx, &r.docs[i])
			}
			documents = append(documents, r.docs[i])
		}
	}
	return documents, nil
}

func (c *Client) verifyAndDecryptDocument(ctx context.Context, signed *protocol.SignedDocument) {
	chain, err := c.drand.ChainInfo(ctx, signed.Content.Drand.Chain)
	if err != nil {
		log.Printf("verify document: fetch chain info: %v", err)
		return
	}
	beacon, err := c.drand.ChainLatestRandomness(ctx, signed.Content.Drand.Chain)
	if err != nil {
		log.Printf("verify document: fetch latest beacon: %v", err)
		return
	}
	valid := signed.Content.IsValid(c.cfg.Difficulty, c.cfg.AcceptanceWindow, chain, beacon)

	var verified bool
	switch c.cfg.Mode {
	case protocol.Open:
		verified = signed.Verify()
	case protocol.SenderRestricted:
		verified = signed.RingVerify(c.currentSenderRing())
	case protocol.ReceiverRestricted:
		verified = signed.Verify()
		if verified && c.cfg.PrivateKey != nil {
			if ok, err := signed.Content.Decrypt(*c.cfg.PrivateKey); err == nil {
				verified = verified && ok
			}
		}
	case protocol.FullyRestricted:
		verified = signed.RingVerify(c.currentSenderRing())
		if verified && c.cfg.PrivateKey != nil {
			if ok, err := signed.Content.Decrypt(*c.cfg.PrivateKey); err == nil {
				verified = verified && ok
			}
		}
	}

	if !verified || !valid {
		log.Printf("received invalid document: verified=%v valid=%v", verified, valid)
	}
}

func clampSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func (c *Client) createDocumentDrand(ctx context.Context) (document.Drand, error) {
	info, err := c.drand.ChainInfo(ctx, c.drandChain)
	if err != nil {
		return document.Drand{}, fmt.Errorf("fetch chain info: %w", err)
	}
	beacon, err := c.drand.ChainLatestRandomness(ctx, c.drandChain)
	if err != nil {
		return document.Drand{}, fmt.Errorf("fetch latest beacon: %w", err)
	}
	return document.Drand{Chain: c.drandChain, Beacon: beacon, Scheme: info.SchemeID}, nil
}

func (c *Client) createMessage(topic string, data []byte, docDrand document.Drand) (protocol.Signed[protocol.Message], error) {
	var doc document.Document
	var err error
	if c.cfg.Mode.RequiresEncryption() {
		doc, err = document.Encrypted(topic, data, c.cfg.Difficulty, c.publicKeyHash(), c.currentReceiverKeys(), docDrand)
	} else {
		doc = document.Plaintext(topic, data, c.cfg.Difficulty, c.publicKeyHash(), docDrand)
	}
	if err != nil {
		return protocol.Signed[protocol.Message]{}, err
	}

	signedDoc, err := c.signDocument(doc)
	if err != nil {
		return protocol.Signed[protocol.Message]{}, err
	}

	msg, err := protocol.NewPublishDocumentMessage(protocol.PublishDocument{Document: signedDoc})
	if err != nil {
		return protocol.Signed[protocol.Message]{}, err
	}
	return c.signMessage(msg)
}

func (c *Client) signDocument(doc document.Document) (protocol.SignedDocument, error) {
	if c.cfg.Mode.RequiresRingSignature() {
		if c.cfg.RingPrivateKey == nil || c.cfg.Ring == nil {
			return protocol.Signed[document.Document]{}, fmt.Errorf("ring private key and ring required for mode %s", c.cfg.Mode)
		}
		return protocol.RingSign(*c.cfg.RingPrivateKey, *c.cfg.Ring, doc)
	}
	if c.cfg.PrivateKey == nil {
		return protocol.Signed[document.Document]{}, fmt.Errorf("private key required for mode %s", c.cfg.Mode)
	}
	return protocol.Sign(*c.cfg.PrivateKey, doc)
}

func (c *Client) publicKeyHash() crypto.Sha256 {
	if c.cfg.Mode.RequiresRingSignature() {
		return crypto.Sum256(c.cfg.RingPrivateKey.AsBytes())
	}
	return crypto.Sum256(c.cfg.PrivateKey.PublicKey().ToBytes())
}

func (c *Client) signMessage(msg protocol.Message) (protocol.Signed[protocol.Message], error) {
	if c.cfg.Mode.RequiresRingSignature() {
		if c.cfg.RingPrivateKey == nil || c.cfg.Ring == nil {
			return protocol.Signed[protocol.Message]{}, fmt.Errorf("ring private key and ring required for mode %s", c.cfg.Mode)
		}
		return protocol.RingSign(*c.cfg.RingPrivateKey, *c.cfg.Ring, msg)
	}
	if c.cfg.PrivateKey == nil {
		return protocol.Signed[protocol.Message]{}, fmt.Errorf("private key required for mode %s", c.cfg.Mode)
	}
	return protocol.Sign(*c.cfg.PrivateKey, msg)
}
