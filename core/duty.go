package core

import "github.com/google/uuid"

// Destination names which kind of peer an outgoing message targets (spec
// §6). The event loop is the only thing that ever turns a Destination +
// Envelope into an actual send.
type Destination uint8

const (
	// EndUser addresses the client that issued the originating request.
	EndUser Destination = iota + 1
	// NodeDest addresses a specific peer node.
	NodeDest
	// SectionDest addresses another section as a whole (routed by its
	// public key prefix).
	SectionDest
)

// Envelope is the outgoing message wrapper described in spec §6: every
// message carries an id, a correlation id tying it back to a request, an
// optional target section key, and a destination kind. Responses set
// CorrelationID to the request's ID and mint a fresh ID of their own.
type Envelope struct {
	ID              uuid.UUID
	CorrelationID   uuid.UUID
	TargetSectionPK []byte
	Dest            Destination
	To              string
	Payload         any
}

// NewEnvelope mints a fresh envelope addressed to dest/to, correlated with
// requestID (the uuid.Nil zero value if there is none to correlate with).
func NewEnvelope(dest Destination, to string, requestID uuid.UUID, payload any) Envelope {
	return Envelope{
		ID:            uuid.New(),
		CorrelationID: requestID,
		Dest:          dest,
		To:            to,
		Payload:       payload,
	}
}

// Duty is a pure description of work the Node Event Loop must perform next:
// send a message, or (component-specific) schedule a follow-up. No
// component holds a reference to the actual send primitive — only the
// Node Event Loop does (see DESIGN.md, Component G).
type Duty interface {
	isDuty()
}

// SendDuty instructs the event loop to deliver Envelope to its destination.
type SendDuty struct {
	Envelope Envelope
}

func (SendDuty) isDuty() {}

// Send is a convenience constructor for the common case of "emit one
// envelope".
func Send(dest Destination, to string, requestID uuid.UUID, payload any) Duty {
	return SendDuty{Envelope: NewEnvelope(dest, to, requestID, payload)}
}

// Duties is the ordered list a component handler returns; nil/empty means
// "no duty" (spec §4.2/§4.5 use this explicitly for idempotent no-ops).
type Duties []Duty

// CmdError is the wire payload for a rejected client command (spec §6/§7).
type CmdError struct {
	Kind    Kind
	Message string
}

// QueryResponse wraps the result of a client query, currently only GetBlob.
type QueryResponse struct {
	GetBlob *GetBlobResult
}

// GetBlobResult is either Data or an error value (NoSuchData on miss).
type GetBlobResult struct {
	Data []byte
	Err  error
}

// NodeQuery is an inter-node request, currently only GetChunk.
type NodeQuery struct {
	GetChunk *GetChunkQuery
}

// GetChunkQuery asks CurrentHolders to replicate Addr to NewHolder.
// ManifestDigest lets the receiving holder confirm it was handed the same
// holder set the sender computed it from, the way a block replicator
// hashes an RLP-encoded header before gossiping it.
type GetChunkQuery struct {
	Addr           BlobAddress
	NewHolder      string
	CurrentHolders []string
	ManifestDigest [32]byte
}

// NodeQueryResponse answers a NodeQuery, currently only GetChunk.
type NodeQueryResponse struct {
	GetChunk *Blob
}

// ProcessingError is the catch-all translation of an unhandled component
// error back to the originating source (spec §4.7/§7), preserving the
// original message id via the envelope's CorrelationID.
type ProcessingError struct {
	Kind    Kind
	Message string
}

// NodeJoined announces that Node has joined this section fresh (no prior
// account elsewhere) and should be bound to AccountID id (spec §6).
type NodeJoined struct {
	ID   AccountID
	Node NodeName
}

// NodeRelocated announces that Old has relocated into this section under
// the new identity New; OldSectionAddr is where this section sends the
// ClaimRewardCounter asking for Old's counter (spec §4.5 AddRelocatedAccount).
type NodeRelocated struct {
	Old            NodeName
	New            NodeName
	OldSectionAddr string
}

// NodeLeft announces that Node is departing this section and its account
// should be frozen pending a claim from its next section (spec §4.5
// PrepareAccountMove).
type NodeLeft struct {
	Node NodeName
}

// ChunkShouldReplicate announces that Addr is under-replicated and should be
// fetched from Holders onto this node (spec §6).
type ChunkShouldReplicate struct {
	Addr    BlobAddress
	Holders []string
}
