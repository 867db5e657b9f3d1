// Package localnet provides a single-process stand-in for the external
// membership/routing transport (core/Nodes.NodeInterface). The real service
// is out of this module's scope (spec §1); this loopback lets
// cmd/sectionnode boot and exercise the event loop against a single node
// without requiring that external service to be running.
package localnet

import (
	"sync"
)

// LoopbackNode fans a Broadcast on a topic back out to every local
// Subscribe on that same topic. It never touches the network.
type LoopbackNode struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// New creates an empty loopback transport.
func New() *LoopbackNode {
	return &LoopbackNode{subs: make(map[string][]chan []byte)}
}

// DialSeed is a no-op: there is no peer discovery in a single-node loopback.
func (n *LoopbackNode) DialSeed(peers []string) error { return nil }

// Broadcast delivers data to every local subscriber of topic.
func (n *LoopbackNode) Broadcast(topic string, data []byte) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs[topic] {
		select {
		case ch <- data:
		default:
			// A slow subscriber drops the message rather than blocking the
			// sender; this mirrors a best-effort pub/sub transport.
		}
	}
	return nil
}

// Subscribe returns a channel fed by future Broadcast calls on topic.
func (n *LoopbackNode) Subscribe(topic string) (<-chan []byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan []byte, 64)
	n.subs[topic] = append(n.subs[topic], ch)
	return ch, nil
}

// ListenAndServe blocks forever: a loopback transport has nothing to serve.
func (n *LoopbackNode) ListenAndServe() { select {} }

// Close is a no-op.
func (n *LoopbackNode) Close() error { return nil }

// Peers always reports no remote peers.
func (n *LoopbackNode) Peers() []string { return nil }
