package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/zerolog/log"

	"spendzk/pkg/prover"
	"spendzk/pkg/spend"
)

const (
	// Protocol IDs
	ProveProtocolID = protocol.ID("/spendzk/prove/1.0.0")

	// maxMessageSize bounds a single encoded request or response
	maxMessageSize = 1 << 20
)

var ErrRemoteProver = errors.New("remote prover error")

// Message types
type MessageType int

const (
	MessageProveRequest MessageType = iota
	MessageProveResponse
)

// Message represents a P2P network message
type Message struct {
	Type    MessageType `json:"type"`
	Payload []byte      `json:"payload"`
}

// ProveResponse is the payload of a MessageProveResponse
type ProveResponse struct {
	Receipt []byte     `json:"receipt,omitempty"`
	Journal []byte     `json:"journal,omitempty"`
	Code    spend.Code `json:"code,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// ServeProver answers proving requests with backend
func (n *Node) ServeProver(backend prover.Prover) {
	n.Host.SetStreamHandler(ProveProtocolID, func(s network.Stream) {
		defer s.Close()

		remote := s.Conn().RemotePeer().String()
		resp := n.handleProve(backend, s)
		if resp.Error != "" {
			log.Warn().Str("peer", remote).Str("error", resp.Error).Msg("Proving request failed")
		} else {
			log.Info().Str("peer", remote).Msg("Proving request served")
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			log.Error().Err(err).Msg("Error marshaling prove response")
			return
		}
		msg := Message{Type: MessageProveResponse, Payload: payload}
		if err := json.NewEncoder(s).Encode(msg); err != nil {
			log.Error().Str("peer", remote).Err(err).Msg("Error sending prove response")
		}
	})
}

func (n *Node) handleProve(backend prover.Prover, s network.Stream) *ProveResponse {
	var msg Message
	if err := json.NewDecoder(io.LimitReader(s, maxMessageSize)).Decode(&msg); err != nil {
		return &ProveResponse{Error: fmt.Sprintf("error decoding prove request: %v", err)}
	}
	if msg.Type != MessageProveRequest {
		return &ProveResponse{Error: "invalid message type for prove protocol"}
	}

	artifact, err := backend.Prove(n.ctx, msg.Payload)
	if err != nil {
		return &ProveResponse{Code: spend.CodeOf(err), Error: err.Error()}
	}
	return &ProveResponse{Receipt: artifact.Receipt, Journal: artifact.Journal}
}

// RemoteProver is a prover.Prover that forwards inputs to a peer running ServeProver
type RemoteProver struct {
	node *Node
	peer peer.ID
}

// NewRemoteProver creates a prover backed by the given peer
func NewRemoteProver(node *Node, peerID peer.ID) *RemoteProver {
	return &RemoteProver{node: node, peer: peerID}
}

// Prove implements prover.Prover
func (r *RemoteProver) Prove(ctx context.Context, input []byte) (*prover.Artifact, error) {
	s, err := r.node.Host.NewStream(ctx, r.peer, ProveProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream to prover %s: %v", r.peer, err)
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	msg := Message{Type: MessageProveRequest, Payload: input}
	if err := json.NewEncoder(s).Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to send prove request: %v", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("failed to close request stream: %v", err)
	}

	var reply Message
	if err := json.NewDecoder(io.LimitReader(s, maxMessageSize)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to read prove response: %v", err)
	}
	if reply.Type != MessageProveResponse {
		return nil, fmt.Errorf("%w: unexpected message type %d", ErrRemoteProver, reply.Type)
	}

	var resp ProveResponse
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prove response: %v", err)
	}
	if resp.Error != "" {
		if resp.Code != spend.CodeUnknown {
			return nil, spend.ErrorForCode(resp.Code, resp.Error)
		}
		return nil, fmt.Errorf("%w: %s", ErrRemoteProver, resp.Error)
	}

	return &prover.Artifact{
		Receipt: resp.Receipt,
		Journal: resp.Journal,
	}, nil
}
