package deaddrop

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"anonycast/crypto"
	"anonycast/drand"
	"anonycast/protocol"
	"anonycast/puzzle"
	"anonycast/wire"
)

// Server is a running deaddrop: it owns the listener, the mutable published
// document state, and the worker pool that does signing and verification.
type Server struct {
	cfg     Config
	state   *state
	workers *workers
	drand   drand.Source

	successResponse protocol.Signed[protocol.Message]
}

// New prepares a deaddrop server but does not yet bind its listener.
func New(cfg Config) (*Server, error) {
	successMessage := protocol.NewSuccessMessage()
	successResponse, err := protocol.Sign(cfg.PrivateKey, successMessage)
	if err != nil {
		return nil, fmt.Errorf("sign success response: %w", err)
	}

	apiURL := cfg.DrandAPIURL
	if apiURL == "" {
		apiURL = drand.DefaultAPIURL
	}

	s := &Server{
		cfg:             cfg,
		state:           newState(),
		workers:         newWorkers(cfg.Workers),
		drand:           drand.NewCachingClient(apiURL),
		successResponse: successResponse,
	}

	if cfg.AssetOwnerUpdate != nil {
		s.applyKeyUpdate(context.Background(), *cfg.AssetOwnerUpdate)
	}

	return s, nil
}

// Serve binds cfg.Address and accepts connections until ctx is cancelled or
// the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("bind deaddrop listener: %w", err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	log.Printf("deaddrop listening on %s (mode=%s)", s.cfg.Address, s.cfg.Mode)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Printf("accept connection: %v", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log.Printf("handling connection from %s", conn.RemoteAddr())

	r := bufio.NewReader(conn)
	for {
		frame, err := wire.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("read frame: %v", err)
			}
			return
		}

		var signed protocol.Signed[protocol.Message]
		if err := json.Unmarshal(frame, &signed); err != nil {
			log.Printf("decode message: %v", err)
			return
		}

		if isServerOnlyMessageType(signed.Content.Type) {
			log.Printf("protocol violation: client sent server-only message type %s, closing connection", signed.Content.Type)
			return
		}

		if !s.verifySignature(signed) {
			log.Printf("signature verification failed for message type %s", signed.Content.Type)
			continue
		}

		if err := s.dispatch(ctx, conn, signed); err != nil {
			log.Printf("handle message: %v", err)
			return
		}
	}
}

// isServerOnlyMessageType reports whether msgType is a response variant a
// deaddrop only ever sends, never receives. A client sending one is not a
// recoverable signature failure but a fatal protocol violation, matching the
// reference deaddrop's unreachable!() on the same three variants.
func isServerOnlyMessageType(msgType protocol.MessageType) bool {
	switch msgType {
	case protocol.MessageTypeDocumentIdList, protocol.MessageTypeDocumentList, protocol.MessageTypeSuccess:
		return true
	default:
		return false
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, signed protocol.Signed[protocol.Message]) error {
	switch signed.Content.Type {
	case protocol.MessageTypeRetrieveDocumentIds:
		req, err := signed.Content.AsRetrieveDocumentIds()
		if err != nil {
			return err
		}
		return s.handleRetrieveDocumentIds(ctx, conn, req)
	case protocol.MessageTypeRetrieveDocuments:
		req, err := signed.Content.AsRetrieveDocuments()
		if err != nil {
			return err
		}
		return s.handleRetrieveDocuments(ctx, conn, req)
	case protocol.MessageTypePublishDocument:
		req, err := signed.Content.AsPublishDocument()
		if err != nil {
			return err
		}
		return s.handlePublishDocument(ctx, conn, req)
	case protocol.MessageTypeUpdateAllowedKeys:
		update, err := signed.Content.AsUpdateAllowedKeys()
		if err != nil {
			return err
		}
		s.applyKeyUpdate(ctx, protocol.Signed[protocol.UpdateAllowedKeys]{
			Content:   update,
			Signature: signed.Signature,
		})
		return nil
	case protocol.MessageTypeRetrieveKeys:
		return s.handleRetrieveKeys(conn)
	default:
		return fmt.Errorf("invalid message type received: %s", signed.Content.Type)
	}
}

func (s *Server) handleRetrieveKeys(conn net.Conn) error {
	update := s.state.latestKeyUpdate()
	if update == nil {
		return errors.New("asset owner has not sent a key update yet")
	}
	return writeSigned(conn, *update)
}

func (s *Server) handleRetrieveDocumentIds(ctx context.Context, conn net.Conn, req protocol.RetrieveDocumentIds) error {
	beacon, err := s.drand.ChainLatestRandomness(ctx, req.Chain)
	if err != nil {
		return fmt.Errorf("fetch latest beacon: %w", err)
	}

	ok := submit(s.workers, func() bool {
		return s.admitRetrieve(req, beacon)
	})
	if !ok {
		return errors.New("client sent invalid retrieve-document-ids request")
	}

	ids := s.state.documentIdsSince(req.SinceRound)

	var allowedSenderKeys *protocol.Signed[protocol.UpdateAllowedKeys]
	if s.cfg.Mode.RequiresRingSignature() {
		allowedSenderKeys = s.state.latestKeyUpdate()
	}

	msg, err := protocol.NewDocumentIdListMessage(protocol.DocumentIdList{
		Ids:               ids,
		AllowedSenderKeys: allowedSenderKeys,
	})
	if err != nil {
		return err
	}

	response, err := submitSign(s.workers, s.cfg.PrivateKey, msg)
	if err != nil {
		return err
	}
	return writeSigned(conn, response)
}

func (s *Server) handleRetrieveDocuments(ctx context.Context, conn net.Conn, req protocol.RetrieveDocuments) error {
	beacon, err := s.drand.ChainLatestRandomness(ctx, req.Chain)
	if err != nil {
		return fmt.Errorf("fetch latest beacon: %w", err)
	}

	ok := submit(s.workers, func() bool {
		return s.admitRetrieve(protocol.RetrieveDocumentIds{
			Beacon:        req.Beacon,
			NonceSolution: req.NonceSolution,
		}, beacon)
	})
	if !ok {
		return errors.New("client sent invalid retrieve-documents request")
	}

	docs, ok := s.state.documentsByIds(req.Ids)
	if !ok {
		return errors.New("client requested unknown document id")
	}

	msg, err := protocol.NewDocumentListMessage(protocol.DocumentList{Documents: docs})
	if err != nil {
		return err
	}
	response, err := submitSign(s.workers, s.cfg.PrivateKey, msg)
	if err != nil {
		return err
	}
	return writeSigned(conn, response)
}

func (s *Server) handlePublishDocument(ctx context.Context, conn net.Conn, req protocol.PublishDocument) error {
	chain, err := s.drand.ChainInfo(ctx, req.Document.Content.Drand.Chain)
	if err != nil {
		return fmt.Errorf("fetch document chain info: %w", err)
	}
	beacon, err := s.drand.ChainLatestRandomness(ctx, req.Document.Content.Drand.Chain)
	if err != nil {
		return fmt.Errorf("fetch document chain beacon: %w", err)
	}

	accepted := submit(s.workers, func() bool {
		if !req.Document.Content.IsValid(s.cfg.Difficulty, s.cfg.AcceptanceWindow, chain, beacon) {
			return false
		}
		s.state.publish(req.Document)
		return true
	})

	if !accepted {
		return errors.New("document failed admission checks, not publishing")
	}
	return writeSigned(conn, s.successResponse)
}

// admitRetrieve checks the proof-of-work and freshness preconditions shared
// by RetrieveDocumentIds and RetrieveDocuments.
func (s *Server) admitRetrieve(req protocol.RetrieveDocumentIds, latest drand.Beacon) bool {
	if s.cfg.AcceptanceWindow != 0 && req.Beacon.RoundNumber+s.cfg.AcceptanceWindow <= latest.RoundNumber {
		return false
	}
	return puzzle.Verify(nil, req.Beacon, s.cfg.Difficulty, req.NonceSolution)
}

func (s *Server) applyKeyUpdate(ctx context.Context, update protocol.Signed[protocol.UpdateAllowedKeys]) {
	current, err := drand.GetBeaconFromFirstChain(ctx)
	if err != nil {
		log.Printf("fetch current beacon round for key update freshness check: %v", err)
		return
	}
	if current.RoundNumber > update.Content.Beacon.RoundNumber &&
		current.RoundNumber-update.Content.Beacon.RoundNumber > s.cfg.AcceptanceWindow {
		log.Printf("update beacon too old: current round %d, update generated in round %d",
			current.RoundNumber, update.Content.Beacon.RoundNumber)
		return
	}
	s.state.applyKeyUpdate(update)
}

func (s *Server) verifySignature(signed protocol.Signed[protocol.Message]) bool {
	return submit(s.workers, func() bool {
		switch signed.Content.Type {
		case protocol.MessageTypeUpdateAllowedKeys:
			if s.cfg.AssetOwnerKey == nil {
				log.Printf("asset owner key not configured, ignoring UpdateAllowedKeys message")
				return false
			}
			return signed.VerifyWith(*s.cfg.AssetOwnerKey)
		case protocol.MessageTypePublishDocument:
			switch {
			case s.cfg.Mode.RequiresRingSignature():
				return signed.RingVerify(s.state.senderRing())
			default:
				return signed.Verify()
			}
		default:
			return signed.Verify() || signed.RingVerify(s.state.senderRing())
		}
	})
}

func submitSign(w *workers, key crypto.PrivateKey, message protocol.Message) (protocol.Signed[protocol.Message], error) {
	type result struct {
		signed protocol.Signed[protocol.Message]
		err    error
	}
	r := submit(w, func() result {
		signed, err := protocol.Sign(key, message)
		return result{signed, err}
	})
	return r.signed, r.err
}

func writeSigned(conn net.Conn, signed any) error {
	data, err := json.Marshal(signed)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return wire.WriteFrame(conn, data)
}
