package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"anonycast/crypto"
	"anonycast/document"
	"anonycast/drand"
	"anonycast/protocol"
	"anonycast/wire"
)

type fakeDrandSource struct {
	latest drand.Beacon
}

func (f fakeDrandSource) ChainList(ctx context.Context) ([]string, error) {
	return []string{"test-chain"}, nil
}

func (f fakeDrandSource) ChainInfo(ctx context.Context, chain string) (drand.ChainInfo, error) {
	return drand.ChainInfo{SchemeID: drand.PedersenBlsUnchained}, nil
}

func (f fakeDrandSource) ChainLatestRandomness(ctx context.Context, chain string) (drand.Beacon, error) {
	return f.latest, nil
}

// fakeDeaddrop is a minimal in-memory deaddrop good enough to exercise
// publish/fetch without any real networking or drand dependency: it stores
// whatever is published and answers retrieval requests from that store.
type fakeDeaddrop struct {
	privateKey crypto.PrivateKey
	docs       map[document.Id]protocol.SignedDocument
}

func newFakeDeaddrop(t *testing.T) (*fakeDeaddrop, net.Conn) {
	t.Helper()
	_, priv, err := crypto.Generate()
	require.NoError(t, err)
	server, client := net.Pipe()

	d := &fakeDeaddrop{privateKey: priv, docs: make(map[document.Id]protocol.SignedDocument)}
	go d.serve(t, server)
	return d, client
}

func (d *fakeDeaddrop) serve(t *testing.T, conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		frame, err := wire.ReadFrame(r)
		if err != nil {
			return
		}
		var signed protocol.Signed[protocol.Message]
		if err := json.Unmarshal(frame, &signed); err != nil {
			return
		}
		response := d.handle(signed.Content)
		data, err := json.Marshal(response)
		if err != nil {
			return
		}
		if err := wire.WriteFrame(conn, data); err != nil {
			return
		}
	}
}

func (d *fakeDeaddrop) handle(msg protocol.Message) protocol.Signed[protocol.Message] {
	switch msg.Type {
	case protocol.MessageTypePublishDocument:
		req, _ := msg.AsPublishDocument()
		d.docs[req.Document.Content.Id] = req.Document
		return d.sign(protocol.NewSuccessMessage())
	case protocol.MessageTypeRetrieveDocumentIds:
		req, _ := msg.AsRetrieveDocumentIds()
		var ids []document.Id
		for id, doc := range d.docs {
			if doc.Content.Topic == req.Topic && id.Round >= req.SinceRound {
				ids = append(ids, id)
			}
		}
		reply, _ := protocol.NewDocumentIdListMessage(protocol.DocumentIdList{Ids: ids})
		return d.sign(reply)
	case protocol.MessageTypeRetrieveDocuments:
		req, _ := msg.AsRetrieveDocuments()
		var docs []protocol.SignedDocument
		for _, id := range req.Ids {
			docs = append(docs, d.docs[id])
		}
		reply, _ := protocol.NewDocumentListMessage(protocol.DocumentList{Documents: docs})
		return d.sign(reply)
	default:
		return d.sign(protocol.NewSuccessMessage())
	}
}

func (d *fakeDeaddrop) sign(msg protocol.Message) protocol.Signed[protocol.Message] {
	signed, err := protocol.Sign(d.privateKey, msg)
	if err != nil {
		panic(err)
	}
	return signed
}

func newTestClient(t *testing.T, conn net.Conn, cfg Config) *Client {
	t.Helper()
	cfg.DeaddropAddresses = []DeaddropAddr{TCPAddr("fake")}
	return &Client{
		cfg:        cfg,
		drandChain: "test-chain",
		drand:      fakeDrandSource{latest: drand.Beacon{RoundNumber: 50, Signature: []byte("round-50-sig")}},
		deaddrops:  []*DeaddropConn{newDeaddropConn(conn)},
	}
}

func TestClientPublishAndFetchOpenMode(t *testing.T) {
	_, publisherPriv, err := crypto.Generate()
	require.NoError(t, err)

	_, conn := newFakeDeaddrop(t)
	c := newTestClient(t, conn, Config{
		Mode:       protocol.Open,
		PrivateKey: &publisherPriv,
		Difficulty: 0,
	})

	ctx := context.Background()
	require.NoError(t, c.SendMessage(ctx, "announcements", []byte("hello world")))

	docs, err := c.FetchMessages(ctx, "announcements", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, []byte("hello world"), *docs[0].Content.Content.Plaintext)
}

func TestClientFetchUnverifiedSkipsSignatureCheck(t *testing.T) {
	_, publisherPriv, err := crypto.Generate()
	require.NoError(t, err)

	_, conn := newFakeDeaddrop(t)
	c := newTestClient(t, conn, Config{
		Mode:       protocol.Open,
		PrivateKey: &publisherPriv,
		Difficulty: 0,
	})

	ctx := context.Background()
	require.NoError(t, c.SendMessage(ctx, "topic", []byte("payload")))

	docs, err := c.FetchMessagesUnverified(ctx, "topic", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestClampSub(t *testing.T) {
	require.Equal(t, uint64(0), clampSub(3, 10))
	require.Equal(t, uint64(5), clampSub(10, 5))
	require.Equal(t, uint64(0), clampSub(5, 5))
}
