package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sectioncore/internal/localnet"
)

var testSelfName = NodeName{0xAA}

func newTestLoop(t *testing.T) (*NodeEventLoop, *localnet.LoopbackNode, <-chan []byte) {
	t.Helper()
	loop, net, observer, _, _ := newTestLoopWithDeps(t)
	return loop, net, observer
}

func newTestLoopWithDeps(t *testing.T) (*NodeEventLoop, *localnet.LoopbackNode, <-chan []byte, *RewardLedger, *ChunkStorageService) {
	t.Helper()
	net := localnet.New()
	chunks := newTestService(t)
	ledger := NewRewardLedger(NewFarmingSystem(), nil)
	funds := NewSectionFundsDispatcher(newFakeEngine(), zap.NewNop())
	loop := NewNodeEventLoop(net, chunks, ledger, funds, "section-1", testSelfName, nil)

	observer, err := net.Subscribe("section-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return loop, net, observer, ledger, chunks
}

func broadcastKind(t *testing.T, net *localnet.LoopbackNode, kind string, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal %s body: %v", kind, err)
	}
	msg, err := json.Marshal(wireMessage{ID: uuid.New(), Kind: kind, Origin: Origin{Addr: "membership"}, Body: raw})
	if err != nil {
		t.Fatalf("marshal %s wire message: %v", kind, err)
	}
	if err := net.Broadcast("section-1", msg); err != nil {
		t.Fatalf("Broadcast %s: %v", kind, err)
	}
}

func decodeWire(t *testing.T, raw []byte) wireMessage {
	t.Helper()
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode wireMessage: %v", err)
	}
	return msg
}

// skipEchoes consumes the echoes of the test's own broadcasts: the loopback
// delivers every message on section-1 to all of its subscribers, the
// observer included, before the loop's reply follows.
func skipEchoes(t *testing.T, observer <-chan []byte, kinds ...string) {
	t.Helper()
	for _, want := range kinds {
		select {
		case raw := <-observer:
			if got := decodeWire(t, raw).Kind; got != want {
				t.Fatalf("observed %s, want the echoed %s input", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("echo of the %s input never observed", want)
		}
	}
}

func TestEventLoopStoreThenGetRoundTrip(t *testing.T) {
	loop, net, observer := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	blob, err := NewPublicBlob([]byte("hello"))
	if err != nil {
		t.Fatalf("NewPublicBlob: %v", err)
	}
	body, _ := json.Marshal(blob)
	storeMsg, _ := json.Marshal(wireMessage{ID: uuid.New(), Kind: "StoreBlob", Origin: Origin{Addr: "client-1"}, Body: body})
	if err := net.Broadcast("section-1", storeMsg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	addrBody, _ := json.Marshal(blob.Address)
	getMsg, _ := json.Marshal(wireMessage{ID: uuid.New(), Kind: "GetBlob", Origin: Origin{Addr: "client-1"}, Body: addrBody})
	if err := net.Broadcast("section-1", getMsg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	skipEchoes(t, observer, "StoreBlob", "GetBlob")

	select {
	case raw := <-observer:
		wire := decodeWire(t, raw)
		if wire.Kind != "QueryResponse" {
			t.Fatalf("kind = %s, want QueryResponse", wire.Kind)
		}
		var resp QueryResponse
		if err := json.Unmarshal(wire.Body, &resp); err != nil {
			t.Fatalf("decode QueryResponse: %v", err)
		}
		if resp.GetBlob.Err != nil {
			t.Fatalf("GetBlob err = %v", resp.GetBlob.Err)
		}
		if string(resp.GetBlob.Data) != "hello" {
			t.Fatalf("GetBlob data = %q, want hello", resp.GetBlob.Data)
		}
	case <-time.After(time.Second):
		t.Fatalf("no response observed on section-1")
	}
}

func TestEventLoopUnknownKindProducesProcessingError(t *testing.T) {
	loop, net, observer := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	badMsg, _ := json.Marshal(wireMessage{ID: uuid.New(), Kind: "NotARealKind", Origin: Origin{Addr: "client-1"}})
	if err := net.Broadcast("section-1", badMsg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	skipEchoes(t, observer, "NotARealKind")

	select {
	case raw := <-observer:
		wire := decodeWire(t, raw)
		if wire.Kind != "ProcessingError" {
			t.Fatalf("kind = %s, want ProcessingError", wire.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a ProcessingError response")
	}
}

func TestEventLoopDispatchesNodeJoined(t *testing.T) {
	loop, net, _, ledger, _ := newTestLoopWithDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	var node NodeName
	node[0] = 0x01
	broadcastKind(t, net, "NodeJoined", NodeJoined{ID: "acct-joined", Node: node})
	time.Sleep(20 * time.Millisecond)

	acct, ok := ledger.Lookup(node)
	if !ok || acct.State != ActiveAccount || acct.AccountID != "acct-joined" {
		t.Fatalf("Lookup = %+v, ok=%v, want Active(acct-joined)", acct, ok)
	}
}

func TestEventLoopDispatchesNodeRelocated(t *testing.T) {
	loop, net, _, ledger, _ := newTestLoopWithDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	oldSection, err := net.Subscribe("old-section")
	if err != nil {
		t.Fatalf("Subscribe old-section: %v", err)
	}

	var oldName, newName NodeName
	oldName[0] = 0x02
	newName[0] = 0x03
	broadcastKind(t, net, "NodeRelocated", NodeRelocated{Old: oldName, New: newName, OldSectionAddr: "old-section"})
	time.Sleep(20 * time.Millisecond)

	acct, ok := ledger.Lookup(newName)
	if !ok || acct.State != AwaitingStart {
		t.Fatalf("Lookup(new) = %+v, ok=%v, want AwaitingStart", acct, ok)
	}

	select {
	case raw := <-oldSection:
		wire := decodeWire(t, raw)
		if wire.Kind != "ClaimRewardCounter" {
			t.Fatalf("kind = %s, want ClaimRewardCounter", wire.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a ClaimRewardCounter sent to the old section")
	}
}

func TestEventLoopDispatchesNodeLeft(t *testing.T) {
	loop, net, observer, ledger, _ := newTestLoopWithDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	var node NodeName
	node[0] = 0x04
	ledger.AddNewAccount("acct-leaving", node)

	broadcastKind(t, net, "NodeLeft", NodeLeft{Node: node})
	time.Sleep(20 * time.Millisecond)

	acct, ok := ledger.Lookup(node)
	if !ok || acct.State != AwaitingMove {
		t.Fatalf("Lookup = %+v, ok=%v, want AwaitingMove", acct, ok)
	}

	// A second NodeLeft for the same (now non-active) node is invalid and
	// must surface as a ProcessingError rather than silently succeeding.
	broadcastKind(t, net, "NodeLeft", NodeLeft{Node: node})
	skipEchoes(t, observer, "NodeLeft", "NodeLeft")
	select {
	case raw := <-observer:
		wire := decodeWire(t, raw)
		if wire.Kind != "ProcessingError" {
			t.Fatalf("kind = %s, want ProcessingError", wire.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a ProcessingError for the repeated NodeLeft")
	}
}

func TestEventLoopDispatchesChunkShouldReplicate(t *testing.T) {
	loop, net, _, _, _ := newTestLoopWithDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	holder, err := net.Subscribe("holder-1")
	if err != nil {
		t.Fatalf("Subscribe holder-1: %v", err)
	}

	addr, err := NewBlobAddress(Public, []byte("under-replicated"), nil)
	if err != nil {
		t.Fatalf("NewBlobAddress: %v", err)
	}
	broadcastKind(t, net, "ChunkShouldReplicate", ChunkShouldReplicate{Addr: addr, Holders: []string{"holder-1"}})

	select {
	case raw := <-holder:
		wire := decodeWire(t, raw)
		if wire.Kind != "NodeQuery" {
			t.Fatalf("kind = %s, want NodeQuery", wire.Kind)
		}
		var q NodeQuery
		if err := json.Unmarshal(wire.Body, &q); err != nil {
			t.Fatalf("decode NodeQuery: %v", err)
		}
		if q.GetChunk == nil {
			t.Fatalf("NodeQuery.GetChunk is nil")
		}
		if q.GetChunk.NewHolder != testSelfName.Hex() {
			t.Fatalf("NewHolder = %s, want %s", q.GetChunk.NewHolder, testSelfName.Hex())
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a GetChunk query sent to holder-1")
	}
}

func TestEventLoopFoldRoutesPayoutRequestInternally(t *testing.T) {
	loop, _, observer := newTestLoop(t)
	ctx := context.Background()

	loop.fold(ctx, Duties{SendDuty{Envelope: Envelope{
		ID:      uuid.New(),
		Payload: PayoutRequest{Amount: Token(10), Account: "acct-1"},
	}}})

	select {
	case raw := <-observer:
		t.Fatalf("PayoutRequest must never be broadcast, got %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}
