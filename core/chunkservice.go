package core

// Chunk Storage Service (component B): the client-facing store/get/delete
// contract plus the replication protocol, expressed in terms of incoming
// messages and the outgoing duties they produce. Store logs a successful
// write the way a content-addressed storage gateway logs Pin — "pinned CID
// %s (%d bytes)" becomes "stored blob %s (%d bytes)" here. Get logs
// nothing, and Delete logs only a failed delete.

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"
)

// Origin identifies the requester of a client command or node query: a
// client signing key for client commands, or a node name for node-to-node
// traffic. Exactly one of Key/Node is set.
type Origin struct {
	Key  []byte
	Node string
	// Addr is where the reply should be routed.
	Addr string
}

// ChunkStorageService wraps a ChunkStore with the protocol described in
// spec §4.2.
type ChunkStorageService struct {
	store  *ChunkStore
	logger *logrus.Logger
}

// NewChunkStorageService binds a service to its backing store.
func NewChunkStorageService(store *ChunkStore, lg *logrus.Logger) *ChunkStorageService {
	if lg == nil {
		lg = logrus.New()
	}
	return &ChunkStorageService{store: store, logger: lg}
}

// Store handles a client StoreBlob command.
func (s *ChunkStorageService) Store(blob Blob, msgID uuid.UUID, origin Origin) Duties {
	if blob.Address.Kind == Private && !bytes.Equal(blob.Owner, origin.Key) {
		s.logger.Warnf("chunkservice: store rejected, owner mismatch for %s", blob.Address)
		return Duties{Send(EndUser, origin.Addr, msgID, CmdError{Kind: KindValidation, Message: ErrInvalidOwners.Error()})}
	}
	if s.store.Has(blob.Address) {
		return Duties{Send(EndUser, origin.Addr, msgID, CmdError{Kind: KindValidation, Message: ErrDataExists.Error()})}
	}
	if err := s.store.Put(blob.Address, blob.Data); err != nil {
		s.logger.Errorf("chunkservice: put %s failed: %v", blob.Address, err)
		return Duties{Send(EndUser, origin.Addr, msgID, CmdError{Kind: KindResource, Message: err.Error()})}
	}
	s.logger.Infof("chunkservice: stored blob %s (%d bytes)", blob.Address, len(blob.Data))
	return nil
}

// Get handles a client GetBlob command.
func (s *ChunkStorageService) Get(addr BlobAddress, msgID uuid.UUID, origin Origin) Duties {
	data, err := s.store.Get(addr)
	result := &GetBlobResult{Data: data, Err: err}
	return Duties{Send(EndUser, origin.Addr, msgID, QueryResponse{GetBlob: result})}
}

// Delete handles a client DeletePrivateBlob command.
func (s *ChunkStorageService) Delete(addr BlobAddress, msgID uuid.UUID, origin Origin) Duties {
	if !s.store.Has(addr) {
		// Idempotent: a delete of something already gone is silently a
		// no-op, never surfaced as an error (spec §4.2).
		return nil
	}
	if addr.Kind == Public {
		return Duties{Send(EndUser, origin.Addr, msgID, CmdError{Kind: KindValidation, Message: ErrInvalidOperation.Error()})}
	}
	// Private: ownership must be re-checked against the stored blob, not
	// just the address kind, since the address alone doesn't carry the
	// owner key bytes once computed.
	data, err := s.store.Get(addr)
	if err != nil {
		return nil
	}
	blob := Blob{Address: addr, Data: data}
	if !blob.matchesOwner(origin.Key) {
		return Duties{Send(EndUser, origin.Addr, msgID, CmdError{Kind: KindValidation, Message: ErrInvalidOwners.Error()})}
	}
	if err := s.store.Delete(addr); err != nil {
		s.logger.Errorf("chunkservice: delete %s failed: %v", addr, err)
		return Duties{Send(EndUser, origin.Addr, msgID, CmdError{Kind: KindResource, Message: ErrFailedToDelete.Error()})}
	}
	return nil
}

// matchesOwner re-derives the private address from data+key and compares it
// to the address the blob was actually stored under, since a ChunkStore
// blob carries no owner field of its own on disk.
func (b Blob) matchesOwner(key []byte) bool {
	if b.Address.Kind != Private {
		return false
	}
	want, err := NewBlobAddress(Private, b.Data, key)
	if err != nil {
		return false
	}
	return want.Equal(b.Address)
}

// ReplicateChunk handles a ChunkShouldReplicate network event: ask
// currentHolders for the blob on behalf of this node (newHolder). The
// holder set passed along is the actual one observed from routing, not an
// empty set — resolving the known ambiguity flagged in spec §9.
func (s *ChunkStorageService) ReplicateChunk(addr BlobAddress, currentHolders []string, newHolder string, msgID uuid.UUID) Duties {
	digest := manifestDigest(addr, currentHolders)
	duties := make(Duties, 0, len(currentHolders))
	for _, holder := range currentHolders {
		duties = append(duties, Send(NodeDest, holder, msgID, NodeQuery{GetChunk: &GetChunkQuery{
			Addr:           addr,
			NewHolder:      newHolder,
			CurrentHolders: currentHolders,
			ManifestDigest: digest,
		}}))
	}
	return duties
}

// replicationManifest is the canonical, RLP-encodable view of a replication
// fanout: which blob, handed to which holders. Encoding it with rlp before
// hashing (rather than hashing the struct fields directly) keeps the digest
// stable regardless of how the caller constructed the slice.
type replicationManifest struct {
	Addr    string
	Holders []string
}

// manifestDigest computes a canonical digest over addr and holders, sorted
// so that the digest doesn't depend on holder discovery order.
func manifestDigest(addr BlobAddress, holders []string) [32]byte {
	sorted := append([]string(nil), holders...)
	sort.Strings(sorted)
	encoded, err := rlp.EncodeToBytes(replicationManifest{Addr: addr.String(), Holders: sorted})
	if err != nil {
		// rlp encoding of strings cannot fail; this is unreachable in
		// practice, but a digest must never panic the caller.
		return sha256.Sum256([]byte(addr.String()))
	}
	return sha256.Sum256(encoded)
}

// GetForReplication answers a peer's GetChunk query.
func (s *ChunkStorageService) GetForReplication(addr BlobAddress, newHolder string, msgID uuid.UUID) Duties {
	data, err := s.store.Get(addr)
	if err != nil {
		s.logger.Debugf("chunkservice: replication source missing %s, no duty emitted", addr)
		return nil
	}
	blob := Blob{Address: addr, Data: data}
	return Duties{Send(NodeDest, newHolder, msgID, NodeQueryResponse{GetChunk: &blob})}
}

// StoreForReplication idempotently stores a blob received from a peer
// during replication; a duplicate is a silent no-op.
func (s *ChunkStorageService) StoreForReplication(blob Blob) {
	if s.store.Has(blob.Address) {
		return
	}
	if err := s.store.Put(blob.Address, blob.Data); err != nil {
		s.logger.Warnf("chunkservice: replication store %s failed: %v", blob.Address, err)
		return
	}
	s.logger.Debugf("chunkservice: replicated blob %s (%d bytes)", blob.Address, len(blob.Data))
}
