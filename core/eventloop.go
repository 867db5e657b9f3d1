package core

// Node Event Loop (component G): the single-threaded cooperative dispatcher
// that owns the only live send primitive in the process. Grounded on
// BaseNode's subscribe-to-a-topic/hand-raw-bytes-to-a-handler wrapper
// (base_node.go), generalized into depth-first duty folding per spec §6.

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"

	Nodes "sectioncore/core/Nodes"
)

// NodeEventLoop is the sole owner of the network transport and drives the
// chunk service, reward ledger and funds dispatcher from whatever arrives on
// it. No other component ever calls Nodes.NodeInterface directly.
type NodeEventLoop struct {
	net    Nodes.NodeInterface
	chunks *ChunkStorageService
	ledger *RewardLedger
	funds  *SectionFundsDispatcher
	logger *logrus.Logger
	topic  string
	self   NodeName
}

// NewNodeEventLoop wires the loop to its collaborators. topic is the single
// pub/sub channel this section's traffic arrives on; self is this node's own
// identity, used to fill in the NewHolder side of a replication fetch that
// the routing layer only tells us to initiate, not who we are.
func NewNodeEventLoop(net Nodes.NodeInterface, chunks *ChunkStorageService, ledger *RewardLedger, funds *SectionFundsDispatcher, topic string, self NodeName, lg *logrus.Logger) *NodeEventLoop {
	if lg == nil {
		lg = logrus.New()
	}
	return &NodeEventLoop{net: net, chunks: chunks, ledger: ledger, funds: funds, topic: topic, self: self, logger: lg}
}

// Run subscribes to the section's topic and processes messages, and
// exhausted payout retries from the funds dispatcher, until ctx is
// cancelled or the subscription closes.
func (l *NodeEventLoop) Run(ctx context.Context) error {
	ch, err := l.net.Subscribe(l.topic)
	if err != nil {
		return err
	}
	l.logger.Infof("eventloop: subscribed to %s", l.topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			l.handleRaw(ctx, raw)
		case failed := <-l.funds.Failures():
			l.fold(ctx, Duties{failed})
		}
	}
}

// wireMessage is the envelope the event loop decodes off the wire; kind
// selects which of the embedded payloads is populated.
type wireMessage struct {
	ID     uuid.UUID       `json:"id"`
	Kind   string          `json:"kind"`
	Origin Origin          `json:"origin"`
	Body   json.RawMessage `json:"body"`
}

func (l *NodeEventLoop) handleRaw(ctx context.Context, raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.logger.Warnf("eventloop: malformed message dropped: %v", err)
		return
	}
	duties, err := l.dispatch(ctx, msg)
	if err != nil {
		l.logger.Errorf("eventloop: %s handling failed: %v", msg.Kind, err)
		duties = Duties{Send(EndUser, msg.Origin.Addr, msg.ID, ProcessingError{
			Kind:    kindOf(err),
			Message: err.Error(),
		})}
	}
	l.fold(ctx, duties)
}

// dispatch decodes and routes one message to the owning component, per the
// message-kind table in spec §6.
func (l *NodeEventLoop) dispatch(ctx context.Context, msg wireMessage) (Duties, error) {
	switch msg.Kind {
	case "StoreBlob":
		var blob Blob
		if err := json.Unmarshal(msg.Body, &blob); err != nil {
			return nil, errSerialization
		}
		return l.chunks.Store(blob, msg.ID, msg.Origin), nil

	case "GetBlob":
		var addr BlobAddress
		if err := json.Unmarshal(msg.Body, &addr); err != nil {
			return nil, errSerialization
		}
		return l.chunks.Get(addr, msg.ID, msg.Origin), nil

	case "DeletePrivateBlob":
		var addr BlobAddress
		if err := json.Unmarshal(msg.Body, &addr); err != nil {
			return nil, errSerialization
		}
		return l.chunks.Delete(addr, msg.ID, msg.Origin), nil

	case "GetChunkQuery":
		var q GetChunkQuery
		if err := json.Unmarshal(msg.Body, &q); err != nil {
			return nil, errSerialization
		}
		if got := manifestDigest(q.Addr, q.CurrentHolders); got != q.ManifestDigest {
			l.logger.Warnf("eventloop: replication manifest digest mismatch for %s from %s", q.Addr, msg.Origin.Node)
		}
		return l.chunks.GetForReplication(q.Addr, q.NewHolder, msg.ID), nil

	case "ClaimRewardCounter":
		var c ClaimRewardCounter
		if err := json.Unmarshal(msg.Body, &c); err != nil {
			return nil, errSerialization
		}
		return l.ledger.HandleClaimRewardCounter(c.Old, c.New, msg.ID, msg.Origin), nil

	case "RewardCounterClaimed":
		var c RewardCounterClaimed
		if err := json.Unmarshal(msg.Body, &c); err != nil {
			return nil, errSerialization
		}
		return l.ledger.ReceiveClaimedRewards(c.ID, c.New, c.Counter), nil

	case "NodeJoined":
		var ev NodeJoined
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return nil, errSerialization
		}
		return l.ledger.AddNewAccount(ev.ID, ev.Node), nil

	case "NodeRelocated":
		var ev NodeRelocated
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return nil, errSerialization
		}
		return l.ledger.AddRelocatedAccount(ev.Old, ev.New, msg.ID, ev.OldSectionAddr), nil

	case "NodeLeft":
		var ev NodeLeft
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return nil, errSerialization
		}
		if err := l.ledger.PrepareAccountMove(ev.Node); err != nil {
			return nil, kinded(KindValidation, err)
		}
		return nil, nil

	case "ChunkShouldReplicate":
		var ev ChunkShouldReplicate
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return nil, errSerialization
		}
		return l.chunks.ReplicateChunk(ev.Addr, ev.Holders, l.self.Hex(), msg.ID), nil

	default:
		return nil, errInvalidOperation
	}
}

// fold walks duties in order: a SendDuty is delivered immediately (or, for
// a PayoutRequest, handed to the funds dispatcher), and any other duty type
// (there is currently only SendDuty) is logged and dropped, until the list
// is exhausted, matching spec §6's "dispatched until quiescence".
func (l *NodeEventLoop) fold(ctx context.Context, duties Duties) {
	for _, d := range duties {
		switch v := d.(type) {
		case SendDuty:
			if req, ok := v.Envelope.Payload.(PayoutRequest); ok {
				// PayoutRequest never goes out over the wire: it routes
				// internally to this node's own funds dispatcher.
				l.drainPayout(ctx, req)
				continue
			}
			l.deliver(v.Envelope)
		default:
			l.logger.Warnf("eventloop: unrecognized duty kind %T dropped", v)
		}
	}
}

func (l *NodeEventLoop) deliver(env Envelope) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		l.logger.Errorf("eventloop: failed to encode outgoing payload: %v", err)
		return
	}
	wire := wireMessage{ID: env.ID, Kind: payloadKind(env.Payload), Body: payload}
	data, err := json.Marshal(wire)
	if err != nil {
		l.logger.Errorf("eventloop: failed to encode envelope: %v", err)
		return
	}
	topic := l.topic
	if env.Dest == NodeDest || env.Dest == SectionDest {
		topic = env.To
	}
	if err := l.net.Broadcast(topic, data); err != nil {
		l.logger.Warnf("eventloop: broadcast to %s failed: %v", topic, err)
	}
}

// drainPayout hands a PayoutRequest duty to the funds dispatcher; any
// eventual failure arrives back through Run's select loop on
// funds.Failures(), not synchronously.
func (l *NodeEventLoop) drainPayout(ctx context.Context, req PayoutRequest) {
	l.funds.InitiateRewardPayout(ctx, req.Amount, req.Account)
}

func payloadKind(payload any) string {
	switch payload.(type) {
	case CmdError:
		return "CmdError"
	case QueryResponse:
		return "QueryResponse"
	case NodeQuery:
		return "NodeQuery"
	case NodeQueryResponse:
		return "NodeQueryResponse"
	case ClaimRewardCounter:
		return "ClaimRewardCounter"
	case RewardCounterClaimed:
		return "RewardCounterClaimed"
	case PayoutRequest:
		return "PayoutRequest"
	case PayoutFailed:
		return "PayoutFailed"
	case ProcessingError:
		return "ProcessingError"
	default:
		return "Unknown"
	}
}

func kindOf(err error) Kind {
	type kinder interface{ Unwrap() error }
	var ke *KindedError
	if k, ok := err.(*KindedError); ok {
		ke = k
	} else if u, ok := err.(kinder); ok {
		if k2, ok := u.Unwrap().(*KindedError); ok {
			ke = k2
		}
	}
	if ke != nil {
		return ke.Kind
	}
	return KindInternal
}
