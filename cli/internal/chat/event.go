package chat

import (
	"time"

	"github.com/BioHazard786/Warpchat/cli/internal/peer"
	"github.com/BioHazard786/Warpchat/cli/internal/signaling"
)

// EventKind classifies what a node reports to its user interface.
type EventKind int

const (
	// EventPeers carries a fresh presence list in Peers.
	EventPeers EventKind = iota
	// EventGlobal is a line from the global room.
	EventGlobal
	// EventPrivate is a direct line received over a peer session.
	EventPrivate
	// EventSession reports a session phase change in Phase.
	EventSession
	// EventError is an error reported by the rendezvous server.
	EventError
	// EventDisconnected means the rendezvous connection is gone.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventPeers:
		return "peers"
	case EventGlobal:
		return "global"
	case EventPrivate:
		return "private"
	case EventSession:
		return "session"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     EventKind
	Peer     peer.PeerID
	Username string
	Text     string
	Time     time.Time
	Phase    peer.Phase
	Peers    []signaling.PeerInfo
	Err      error
}
