package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog/log"
)

// Node represents a P2P node serving or consuming the proving protocol
type Node struct {
	Host        host.Host
	PingService *ping.PingService

	ctx context.Context
}

// NewNode creates a new P2P node listening on all interfaces at port
func NewNode(ctx context.Context, port int) (*Node, error) {
	return NewNodeOnAddr(ctx, fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port))
}

// NewNodeOnAddr creates a new P2P node listening on the given multiaddr
func NewNodeOnAddr(ctx context.Context, listenAddr string) (*Node, error) {
	// Create multiaddr for listening
	addr, err := multiaddr.NewMultiaddr(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create multiaddr: %v", err)
	}

	// Create libp2p host
	h, err := libp2p.New(
		libp2p.ListenAddrs(addr),
		libp2p.EnableRelay(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %v", err)
	}

	// Create ping service for health checks
	ps := ping.NewPingService(h)

	log.Info().Str("id", h.ID().String()).Msg("Node started")
	for _, a := range h.Addrs() {
		log.Info().Msgf("  %s/p2p/%s", a, h.ID().String())
	}

	return &Node{
		Host:        h,
		PingService: ps,
		ctx:         ctx,
	}, nil
}

// FullAddrs returns the node's dialable addresses including its peer ID
func (n *Node) FullAddrs() []string {
	addrs := make([]string, 0, len(n.Host.Addrs()))
	for _, a := range n.Host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.Host.ID()))
	}
	return addrs
}

// Connect connects to a peer using their multiaddr and returns its ID
func (n *Node) Connect(ctx context.Context, peerAddr string) (peer.ID, error) {
	// Parse the peer multiaddr
	addr, err := multiaddr.NewMultiaddr(peerAddr)
	if err != nil {
		return "", fmt.Errorf("invalid peer address: %v", err)
	}

	// Extract the peer ID from the multiaddr
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return "", fmt.Errorf("failed to get peer info: %v", err)
	}

	// Connect to the peer
	if err := n.Host.Connect(ctx, *info); err != nil {
		return "", fmt.Errorf("failed to connect to peer: %v", err)
	}

	log.Info().Str("peer", info.ID.String()).Msg("Connected to peer")
	return info.ID, nil
}

// Disconnect from a peer
func (n *Node) Disconnect(peerID peer.ID) error {
	if err := n.Host.Network().ClosePeer(peerID); err != nil {
		return fmt.Errorf("failed to disconnect from peer: %v", err)
	}
	return nil
}

// GetPeers returns a list of connected peers
func (n *Node) GetPeers() []peer.ID {
	return n.Host.Network().Peers()
}

// Close shuts down the node
func (n *Node) Close() error {
	return n.Host.Close()
}
