package protocol

// ===== SERVER NOTIFICATIONS =====
// Sent by the relay in the clear. Origin is always ServerAddress.

// Welcome is sent to a peer once it is registered, and again after a reconnect
type Welcome struct {
	You    PeerInfo   `json:"you"`
	RoomID string     `json:"roomId"`
	HostID string     `json:"hostId"`
	Peers  []PeerInfo `json:"peers"`
}

// PeerLeft announces that a guest left the room
type PeerLeft struct {
	ID string `json:"id"`
}

// RoomClosed announces that the host left and the room is gone
type RoomClosed struct {
	Reason string `json:"reason"`
}

var (
	WelcomeNotification    = NewNotificationType[Welcome]("room/welcome")
	PeerJoinedNotification = NewNotificationType[PeerInfo]("room/peerJoined")
	PeerLeftNotification   = NewNotificationType[PeerLeft]("room/peerLeft")
	RoomClosedNotification = NewNotificationType[RoomClosed]("room/closed")
)

// ===== SERVER REQUESTS =====

// JoinParams is sent from the relay to the host when a user asks to join
type JoinParams struct {
	User User `json:"user"`
}

// JoinResult is the host's decision
type JoinResult struct {
	Accepted bool `json:"accepted"`
}

// KickParams names the guest a host wants removed
type KickParams struct {
	ID string `json:"id"`
}

// Pong answers a server ping
type Pong struct {
	Time int64 `json:"time"`
}

var (
	// JoinRequest is issued by the relay to the host
	JoinRequest = NewRequestType[JoinParams, JoinResult]("room/join")

	// Requests peers address to the relay itself
	PingRequest      = NewRequestType[Empty, Pong]("server/ping")
	PeersRequest     = NewRequestType[Empty, []PeerInfo]("room/peers")
	CloseRoomRequest = NewRequestType[Empty, Empty]("room/close")
	KickRequest      = NewRequestType[KickParams, Empty]("room/kick")
)

// ===== DOCUMENT SYNC CHANNEL =====
// Opaque binary payloads produced by the document layer.

// SyncPayload wraps an opaque update produced by the document layer
type SyncPayload struct {
	Data []byte `json:"data"`
}

var (
	DocumentUpdateBroadcast    = NewBroadcastType[SyncPayload]("sync/update")
	AwarenessUpdateBroadcast   = NewBroadcastType[SyncPayload]("sync/awareness")
	QueryStateBroadcast        = NewBroadcastType[Empty]("sync/queryState")
	DocumentUpdateNotification = NewNotificationType[SyncPayload]("sync/update")
)
