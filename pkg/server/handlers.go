package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
	"github.com/ZentaChain/zentalk-collab/pkg/storage"
)

// registerHandlers installs the requests a peer can address to the relay
func (s *Server) registerHandlers(p *Peer) {
	connection.HandleRequest(p.conn, protocol.PingRequest,
		func(ctx context.Context, origin string, _ protocol.Empty) (protocol.Pong, error) {
			return protocol.Pong{Time: time.Now().UnixMilli()}, nil
		})

	connection.HandleRequest(p.conn, protocol.PeersRequest,
		func(ctx context.Context, origin string, _ protocol.Empty) ([]protocol.PeerInfo, error) {
			return p.room.Infos(), nil
		})

	connection.HandleRequest(p.conn, protocol.CloseRoomRequest,
		func(ctx context.Context, origin string, _ protocol.Empty) (protocol.Empty, error) {
			if !p.host {
				return protocol.Empty{}, ErrNotHost
			}
			s.log.Info("host closed room", zap.String("room", p.room.ID()))
			s.dispose(p, "closed by host", true)
			return protocol.Empty{}, nil
		})

	connection.HandleRequest(p.conn, protocol.KickRequest,
		func(ctx context.Context, origin string, params protocol.KickParams) (protocol.Empty, error) {
			if !p.host {
				return protocol.Empty{}, ErrNotHost
			}
			target := p.room.GetPeer(params.ID)
			if target == nil || target.host {
				return protocol.Empty{}, fmt.Errorf("%w: %s", ErrTargetNotFound, params.ID)
			}
			notifyPeer(s, target, protocol.RoomClosedNotification, protocol.RoomClosed{Reason: "kicked"})
			s.audit(storage.Event{
				RoomID: p.room.ID(),
				PeerID: target.id,
				UserID: target.user.ID,
				Type:   storage.EventPeerKicked,
			})
			s.dispose(target, "kicked", true)
			return protocol.Empty{}, nil
		})
}

// RequestJoin asks the host of roomID to admit user. On acceptance the room
// clock is advanced and returned for the guest's claim.
func (s *Server) RequestJoin(ctx context.Context, roomID string, user protocol.User) (uint64, bool, error) {
	room := s.rooms.Get(roomID)
	if room == nil {
		if s.rooms.IsClosed(roomID) {
			return 0, false, ErrRoomClosed
		}
		return 0, false, ErrRoomNotFound
	}
	host := room.Host()

	res, err := connection.SendRequest(ctx, host.conn, protocol.JoinRequest, host.id,
		protocol.JoinParams{User: user},
		connection.WithTimeout(s.opts.JoinTimeout),
	)
	if err != nil {
		return 0, false, err
	}
	if !res.Accepted {
		return 0, false, nil
	}
	return room.NextClock(), true, nil
}

// onDisconnect gives a dropped peer the reconnect grace period before it is
// removed
func (s *Server) onDisconnect(p *Peer, err error) {
	s.log.Debug("peer transport lost",
		zap.String("peer", p.id),
		zap.Duration("grace", s.opts.ReconnectGrace),
		zap.Error(err),
	)
	reason := "disconnected"
	if p.host {
		reason = "host disconnected"
	}
	ready := func() bool { return p.conn.State() == connection.StateReady }
	p.scheduleDispose(s.opts.ReconnectGrace, ready, func() {
		s.teardown(p, reason, false)
	})
}

// dispose removes p for good. Losing the host closes the room and takes
// every guest with it; losing a guest only tells the others it left.
func (s *Server) dispose(p *Peer, reason string, linger bool) {
	if !p.markDisposed() {
		return
	}
	s.teardown(p, reason, linger)
}

// teardown releases a peer already marked disposed
func (s *Server) teardown(p *Peer, reason string, linger bool) {
	s.peers.remove(p)
	room := p.room
	log := s.log.With(zap.String("peer", p.id), zap.String("room", room.ID()))

	if p.host {
		guests, ok := room.markClosed()
		s.rooms.remove(room.ID())
		if ok {
			for _, g := range guests {
				notifyPeer(s, g, protocol.RoomClosedNotification, protocol.RoomClosed{Reason: reason})
				if g.markDisposed() {
					s.peers.remove(g)
					_ = g.conn.Close()
				}
			}
		}
		log.Info("room closed", zap.String("reason", reason), zap.Int("guests", len(guests)))
		s.audit(storage.Event{RoomID: room.ID(), PeerID: p.id, UserID: p.user.ID, Type: storage.EventRoomClosed, Detail: reason})
	} else {
		room.removeGuest(p.id)
		left := protocol.PeerLeft{ID: p.id}
		for _, other := range room.Peers() {
			notifyPeer(s, other, protocol.PeerLeftNotification, left)
		}
		log.Info("peer left", zap.String("reason", reason))
		s.audit(storage.Event{RoomID: room.ID(), PeerID: p.id, UserID: p.user.ID, Type: storage.EventPeerLeft, Detail: reason})
	}

	s.closeConn(p, linger)
	s.updateGauges()
}

func (s *Server) closeConn(p *Peer, linger bool) {
	if !linger {
		_ = p.conn.Close()
		return
	}
	time.AfterFunc(closeLinger, func() { _ = p.conn.Close() })
}
