package client

import (
	"context"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// DocumentHandlers receive the opaque document layer traffic. Any field may
// be nil.
type DocumentHandlers struct {
	// Update is an incremental change broadcast by origin
	Update func(origin string, data []byte)
	// Awareness is cursor or presence state broadcast by origin
	Awareness func(origin string, data []byte)
	// QueryState asks this peer for its full state; answer with SendState
	QueryState func(origin string)
	// State is a full state sent directly to this peer
	State func(origin string, data []byte)
}

// DocumentChannel moves CRDT payloads between room members. The payloads
// are opaque here; merging is up to the document layer.
type DocumentChannel struct {
	conn *connection.Connection
}

// NewDocumentChannel binds h to the session's connection
func NewDocumentChannel(s *Session, h DocumentHandlers) *DocumentChannel {
	c := s.Conn()

	connection.HandleBroadcast(c, protocol.DocumentUpdateBroadcast, func(ctx context.Context, origin string, p protocol.SyncPayload) error {
		if h.Update != nil {
			h.Update(origin, p.Data)
		}
		return nil
	})
	connection.HandleBroadcast(c, protocol.AwarenessUpdateBroadcast, func(ctx context.Context, origin string, p protocol.SyncPayload) error {
		if h.Awareness != nil {
			h.Awareness(origin, p.Data)
		}
		return nil
	})
	connection.HandleBroadcast(c, protocol.QueryStateBroadcast, func(ctx context.Context, origin string, _ protocol.Empty) error {
		if h.QueryState != nil {
			h.QueryState(origin)
		}
		return nil
	})
	connection.HandleNotification(c, protocol.DocumentUpdateNotification, func(ctx context.Context, origin string, p protocol.SyncPayload) error {
		if h.State != nil {
			h.State(origin, p.Data)
		}
		return nil
	})

	return &DocumentChannel{conn: c}
}

// SendUpdate broadcasts an incremental change
func (d *DocumentChannel) SendUpdate(ctx context.Context, data []byte) error {
	return connection.SendBroadcast(ctx, d.conn, protocol.DocumentUpdateBroadcast, protocol.SyncPayload{Data: data})
}

// SendAwareness broadcasts presence state
func (d *DocumentChannel) SendAwareness(ctx context.Context, data []byte) error {
	return connection.SendBroadcast(ctx, d.conn, protocol.AwarenessUpdateBroadcast, protocol.SyncPayload{Data: data})
}

// QueryState asks every other member for its full state
func (d *DocumentChannel) QueryState(ctx context.Context) error {
	return connection.SendBroadcast(ctx, d.conn, protocol.QueryStateBroadcast, protocol.Empty{})
}

// SendState answers a state query from target
func (d *DocumentChannel) SendState(ctx context.Context, target string, data []byte) error {
	return connection.SendNotification(ctx, d.conn, protocol.DocumentUpdateNotification, target, protocol.SyncPayload{Data: data})
}
