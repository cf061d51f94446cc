package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"anonycast/document"
	"anonycast/drand"
)

func TestMessageRoundTripRetrieveDocumentIds(t *testing.T) {
	req := RetrieveDocumentIds{
		Topic:      "news/today",
		SinceRound: 5,
		Beacon:     drand.Beacon{RoundNumber: 10},
		Chain:      "chain-a",
	}
	msg, err := NewRetrieveDocumentIdsMessage(req)
	require.NoError(t, err)
	require.Equal(t, MessageTypeRetrieveDocumentIds, msg.Type)

	decoded, err := msg.AsRetrieveDocumentIds()
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestMessageAsWrongTypeFails(t *testing.T) {
	msg := NewSuccessMessage()
	_, err := msg.AsRetrieveDocumentIds()
	require.Error(t, err)
}

func TestSuccessAndRetrieveKeysHaveNilSignableContent(t *testing.T) {
	success := NewSuccessMessage()
	data, err := success.SerializeForSignature()
	require.NoError(t, err)
	require.Nil(t, data)

	keys := NewRetrieveKeysMessage()
	data, err = keys.SerializeForSignature()
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestMessageSerializeForSignatureIsPayloadBytes(t *testing.T) {
	req := RetrieveDocumentIds{Topic: "t", SinceRound: 1}
	msg, err := NewRetrieveDocumentIdsMessage(req)
	require.NoError(t, err)

	want, err := req.SerializeForSignature()
	require.NoError(t, err)

	got, err := msg.SerializeForSignature()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDocumentIdListRoundTrip(t *testing.T) {
	ids := []document.Id{
		{Round: 1, ContentHash: [32]byte{1}, PublicKeyHash: [32]byte{2}},
	}
	list := DocumentIdList{Ids: ids}
	msg, err := NewDocumentIdListMessage(list)
	require.NoError(t, err)

	decoded, err := msg.AsDocumentIdList()
	require.NoError(t, err)
	require.Equal(t, ids, decoded.Ids)
	require.Nil(t, decoded.AllowedSenderKeys)
}
