package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// route returns the interceptor installed on a peer's connection. Messages
// addressed to the relay fall through to the connection's own dispatch;
// everything else is forwarded here without being opened.
func (s *Server) route(p *Peer) func(msg *protocol.Message) bool {
	return func(msg *protocol.Message) bool {
		// the relay stamps the origin so peers cannot spoof each other
		msg.Origin = p.id
		if s.opts.Metrics != nil {
			s.opts.Metrics.Messages.WithLabelValues(msg.Kind.String()).Inc()
		}

		switch msg.Kind {
		case protocol.KindResponse, protocol.KindResponseError:
			return s.relay.PushResponse(p.id, msg)

		case protocol.KindRequest:
			if msg.Target == protocol.ServerAddress {
				return false
			}
			go s.relayRequest(p, msg)
			return true

		case protocol.KindNotification:
			if msg.Target == protocol.ServerAddress {
				return false
			}
			target := p.room.GetPeer(msg.Target)
			if target == nil {
				s.log.Debug("notification for unknown peer dropped",
					zap.String("origin", p.id),
					zap.String("target", msg.Target),
				)
				return true
			}
			if err := s.relay.SendNotification(target, msg); err != nil {
				s.log.Debug("notification forward failed", zap.String("target", target.id), zap.Error(err))
			}
			return true

		case protocol.KindBroadcast:
			peers := p.room.Peers()
			targets := make([]Target, 0, len(peers))
			for _, peer := range peers {
				targets = append(targets, peer)
			}
			s.relay.SendBroadcast(p.id, targets, msg)
			return true

		default:
			return false
		}
	}
}

// relayRequest forwards a peer-to-peer request and routes the response back
// under the sender's original id
func (s *Server) relayRequest(origin *Peer, req *protocol.Message) {
	target := origin.room.GetPeer(req.Target)
	if target == nil {
		s.replyError(origin, req, ErrTargetNotFound.Error()+": "+req.Target)
		return
	}

	resp, err := s.relay.SendRequest(context.Background(), target, req)
	if err != nil {
		s.log.Debug("relayed request failed",
			zap.String("origin", origin.id),
			zap.String("target", target.id),
			zap.Error(err),
		)
		s.replyError(origin, req, err.Error())
		return
	}

	out := resp.Clone()
	out.ID = req.ID
	out.Origin = target.id
	out.Target = origin.id
	if err := origin.Forward(out); err != nil {
		s.log.Debug("relayed response dropped", zap.String("origin", origin.id), zap.Error(err))
	}
}

// replyError answers req in the clear on behalf of the relay
func (s *Server) replyError(p *Peer, req *protocol.Message, text string) {
	resp := protocol.NewResponseError(req.ID, protocol.ServerAddress, p.id, text)
	resp.ContentEncoding = p.conn.Codec().Name()
	if err := p.Forward(resp); err != nil {
		s.log.Debug("error response dropped", zap.String("peer", p.id), zap.Error(err))
	}
}
