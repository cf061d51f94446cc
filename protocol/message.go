package protocol

import (
	"encoding/json"
	"fmt"

	"anonycast/crypto"
	"anonycast/document"
	"anonycast/drand"
)

// SignedDocument is a document together with the signature that
// authenticates its publisher.
type SignedDocument = Signed[document.Document]

// MessageType tags the payload carried by a Message envelope.
type MessageType string

const (
	MessageTypeSuccess             MessageType = "success"
	MessageTypeRetrieveDocumentIds MessageType = "retrieve_document_ids"
	MessageTypeRetrieveDocuments   MessageType = "retrieve_documents"
	MessageTypePublishDocument     MessageType = "publish_document"
	MessageTypeDocumentIdList      MessageType = "document_id_list"
	MessageTypeDocumentList        MessageType = "document_list"
	MessageTypeUpdateAllowedKeys   MessageType = "update_allowed_keys"
	MessageTypeRetrieveKeys        MessageType = "retrieve_keys"
)

// Message is the wire envelope for every request and response exchanged
// between a client and a deaddrop: a type tag plus the raw JSON encoding of
// the matching payload struct below. Data is left nil for the two
// payload-less message types, Success and RetrieveKeys.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SerializeForSignature delegates to the wrapped payload's own bytes: a
// Message's signable content is the inner value, never the envelope, so a
// verifier only needs the payload struct definition to reproduce it.
func (m Message) SerializeForSignature() ([]byte, error) {
	switch m.Type {
	case MessageTypeSuccess, MessageTypeRetrieveKeys:
		return nil, nil
	default:
		return m.Data, nil
	}
}

func newMessage(t MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Message{Type: t, Data: data}, nil
}

func NewSuccessMessage() Message {
	return Message{Type: MessageTypeSuccess}
}

func NewRetrieveKeysMessage() Message {
	return Message{Type: MessageTypeRetrieveKeys}
}

func NewRetrieveDocumentIdsMessage(v RetrieveDocumentIds) (Message, error) {
	return newMessage(MessageTypeRetrieveDocumentIds, v)
}

func NewRetrieveDocumentsMessage(v RetrieveDocuments) (Message, error) {
	return newMessage(MessageTypeRetrieveDocuments, v)
}

func NewPublishDocumentMessage(v PublishDocument) (Message, error) {
	return newMessage(MessageTypePublishDocument, v)
}

func NewDocumentIdListMessage(v DocumentIdList) (Message, error) {
	return newMessage(MessageTypeDocumentIdList, v)
}

func NewDocumentListMessage(v DocumentList) (Message, error) {
	return newMessage(MessageTypeDocumentList, v)
}

func NewUpdateAllowedKeysMessage(v UpdateAllowedKeys) (Message, error) {
	return newMessage(MessageTypeUpdateAllowedKeys, v)
}

func (m Message) AsRetrieveDocumentIds() (RetrieveDocumentIds, error) {
	var v RetrieveDocumentIds
	if m.Type != MessageTypeRetrieveDocumentIds {
		return v, fmt.Errorf("message is %s, not %s", m.Type, MessageTypeRetrieveDocumentIds)
	}
	err := json.Unmarshal(m.Data, &v)
	return v, err
}

func (m Message) AsRetrieveDocuments() (RetrieveDocuments, error) {
	var v RetrieveDocuments
	if m.Type != MessageTypeRetrieveDocuments {
		return v, fmt.Errorf("message is %s, not %s", m.Type, MessageTypeRetrieveDocuments)
	}
	err := json.Unmarshal(m.Data, &v)
	return v, err
}

func (m Message) AsPublishDocument() (PublishDocument, error) {
	var v PublishDocument
	if m.Type != MessageTypePublishDocument {
		return v, fmt.Errorf("message is %s, not %s", m.Type, MessageTypePublishDocument)
	}
	err := json.Unmarshal(m.Data, &v)
	return v, err
}

func (m Message) AsDocumentIdList() (DocumentIdList, error) {
	var v DocumentIdList
	if m.Type != MessageTypeDocumentIdList {
		return v, fmt.Errorf("message is %s, not %s", m.Type, MessageTypeDocumentIdList)
	}
	err := json.Unmarshal(m.Data, &v)
	return v, err
}

func (m Message) AsDocumentList() (DocumentList, error) {
	var v DocumentList
	if m.Type != MessageTypeDocumentList {
		return v, fmt.Errorf("message is %s, not %s", m.Type, MessageTypeDocumentList)
	}
	err := json.Unmarshal(m.Data, &v)
	return v, err
}

func (m Message) AsUpdateAllowedKeys() (UpdateAllowedKeys, error) {
	var v UpdateAllowedKeys
	if m.Type != MessageTypeUpdateAllowedKeys {
		return v, fmt.Errorf("message is %s, not %s", m.Type, MessageTypeUpdateAllowedKeys)
	}
	err := json.Unmarshal(m.Data, &v)
	return v, err
}

// RetrieveDocumentIds asks a deaddrop for the ids of every document it holds
// anchored at or after SinceRound, proving admission with a proof-of-work
// solution pinned to beacon. Topic is carried in the request, but the
// deaddrop does not filter the ids by it.
type RetrieveDocumentIds struct {
	Topic         string       `json:"topic"`
	SinceRound    uint64       `json:"since_round"`
	Beacon        drand.Beacon `json:"beacon"`
	Chain         string       `json:"chain"`
	NonceSolution uint32       `json:"nonce_solution"`
}

func (v RetrieveDocumentIds) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(v)
}

// RetrieveDocuments asks a deaddrop for the full bodies of the named
// document ids.
type RetrieveDocuments struct {
	Ids           []document.Id `json:"ids"`
	Beacon        drand.Beacon  `json:"beacon"`
	Chain         string        `json:"chain"`
	NonceSolution uint32        `json:"nonce_solution"`
}

func (v RetrieveDocuments) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(v)
}

// PublishDocument asks a deaddrop to accept and store a signed document.
type PublishDocument struct {
	Document SignedDocument `json:"document"`
}

func (v PublishDocument) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(v)
}

// DocumentIdList answers RetrieveDocumentIds. In sender- and fully-restricted
// modes the deaddrop also attaches its latest signed key update, if it has
// one.
type DocumentIdList struct {
	Ids               []document.Id                `json:"ids"`
	AllowedSenderKeys *Signed[UpdateAllowedKeys]    `json:"allowed_sender_keys,omitempty"`
}

func (v DocumentIdList) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(v)
}

// DocumentList answers RetrieveDocuments with the requested document
// bodies.
type DocumentList struct {
	Documents []SignedDocument `json:"documents"`
}

func (v DocumentList) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(v)
}

// UpdateAllowedKeys is the asset owner's periodically re-signed statement of
// which ring members may publish and which public keys may be named as
// receivers, anchored to a beacon round so deaddrops and clients can tell a
// stale copy from a current one.
type UpdateAllowedKeys struct {
	AllowedSenderKeys   []crypto.RingPublicKey `json:"allowed_sender_keys"`
	AllowedReceiverKeys []crypto.PublicKey     `json:"allowed_receiver_keys"`
	Beacon              drand.Beacon           `json:"beacon"`
}

func (v UpdateAllowedKeys) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(v)
}
