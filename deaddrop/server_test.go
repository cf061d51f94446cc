package deaddrop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"anonycast/crypto"
	"anonycast/drand"
	"anonycast/protocol"
	"anonycast/puzzle"
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

func newTestServer(t *testing.T, mode protocol.ModeOfOperation, difficulty uint8, window uint64) (*Server, crypto.PrivateKey) {
	t.Helper()
	_, priv, err := crypto.Generate()
	require.NoError(t, err)

	successMessage := protocol.NewSuccessMessage()
	successResponse, err := protocol.Sign(priv, successMessage)
	require.NoError(t, err)

	s := &Server{
		cfg: Config{
			Mode:             mode,
			PrivateKey:       priv,
			Difficulty:       difficulty,
			AcceptanceWindow: window,
		},
		state:           newState(),
		workers:         newWorkers(2),
		drand:           fakeDrandSource{latest: drand.Beacon{RoundNumber: 100, Signature: []byte("round-100-sig")}},
		successResponse: successResponse,
	}
	return s, priv
}

func TestAdmitRetrieveAcceptsFreshRequest(t *testing.T) {
	s, _ := newTestServer(t, protocol.Open, 0, 5)
	beacon := drand.Beacon{RoundNumber: 100, Signature: []byte("round-100-sig")}
	solution := puzzle.Solve(nil, beacon, 0)

	req := protocol.RetrieveDocumentIds{Beacon: beacon, NonceSolution: solution}
	require.True(t, s.admitRetrieve(req, beacon))
}

func TestAdmitRetrieveRejectsStaleBeacon(t *testing.T) {
	s, _ := newTestServer(t, protocol.Open, 0, 5)
	staleBeacon := drand.Beacon{RoundNumber: 10, Signature: []byte("round-10-sig")}
	solution := puzzle.Solve(nil, staleBeacon, 0)
	latest := drand.Beacon{RoundNumber: 100}

	req := protocol.RetrieveDocumentIds{Beacon: staleBeacon, NonceSolution: solution}
	require.False(t, s.admitRetrieve(req, latest))
}

func TestAdmitRetrieveRejectsBadPuzzleSolution(t *testing.T) {
	s, _ := newTestServer(t, protocol.Open, 16, 0)
	beacon := drand.Beacon{RoundNumber: 100, Signature: []byte("round-100-sig")}

	req := protocol.RetrieveDocumentIds{Beacon: beacon, NonceSolution: 0}
	require.False(t, s.admitRetrieve(req, beacon))
}

func TestVerifySignatureOpenModeAcceptsAsymmetric(t *testing.T) {
	s, priv := newTestServer(t, protocol.Open, 0, 0)
	msg, err := protocol.NewRetrieveDocumentIdsMessage(protocol.RetrieveDocumentIds{Topic: "t"})
	require.NoError(t, err)
	signed, err := protocol.Sign(priv, msg)
	require.NoError(t, err)

	require.True(t, s.verifySignature(signed))
}

func TestVerifySignatureRejectsUnconfiguredAssetOwnerKey(t *testing.T) {
	s, _ := newTestServer(t, protocol.SenderRestricted, 0, 0)
	_, otherPriv, err := crypto.Generate()
	require.NoError(t, err)

	msg, err := protocol.NewUpdateAllowedKeysMessage(protocol.UpdateAllowedKeys{})
	require.NoError(t, err)
	signed, err := protocol.Sign(otherPriv, msg)
	require.NoError(t, err)

	require.False(t, s.verifySignature(signed))
}

func TestIsServerOnlyMessageTypeRejectsResponseVariants(t *testing.T) {
	require.True(t, isServerOnlyMessageType(protocol.MessageTypeDocumentIdList))
	require.True(t, isServerOnlyMessageType(protocol.MessageTypeDocumentList))
	require.True(t, isServerOnlyMessageType(protocol.MessageTypeSuccess))
}

func TestIsServerOnlyMessageTypeAcceptsRequestVariants(t *testing.T) {
	require.False(t, isServerOnlyMessageType(protocol.MessageTypeRetrieveDocumentIds))
	require.False(t, isServerOnlyMessageType(protocol.MessageTypeRetrieveDocuments))
	require.False(t, isServerOnlyMessageType(protocol.MessageTypePublishDocument))
	require.False(t, isServerOnlyMessageType(protocol.MessageTypeUpdateAllowedKeys))
	require.False(t, isServerOnlyMessageType(protocol.MessageTypeRetrieveKeys))
}

func TestVerifySignatureRejectsWrongAssetOwnerKey(t *testing.T) {
	s, _ := newTestServer(t, protocol.SenderRestricted, 0, 0)
	assetOwnerPub, _, err := crypto.Generate()
	require.NoError(t, err)
	s.cfg.AssetOwnerKey = &assetOwnerPub

	_, impostorPriv, err := crypto.Generate()
	require.NoError(t, err)
	msg, err := protocol.NewUpdateAllowedKeysMessage(protocol.UpdateAllowedKeys{})
	require.NoError(t, err)
	signed, err := protocol.Sign(impostorPriv, msg)
	require.NoError(t, err)

	require.False(t, s.verifySignature(signed))
}
