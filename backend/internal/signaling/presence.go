package signaling

import "sort"

// StatusOnline is the only status the server reports.
const StatusOnline = "online"

// Presence tracks registered peers. It is owned by the hub goroutine.
type Presence struct {
	peers map[string]PeerInfo
}

func NewPresence() *Presence {
	return &Presence{peers: make(map[string]PeerInfo)}
}

// Add records or renames a peer.
func (p *Presence) Add(peerID, username string) {
	p.peers[peerID] = PeerInfo{PeerID: peerID, Username: username, Status: StatusOnline}
}

// Remove forgets a peer. It reports whether the peer was present.
func (p *Presence) Remove(peerID string) bool {
	if _, ok := p.peers[peerID]; !ok {
		return false
	}
	delete(p.peers, peerID)
	return true
}

// UsernameTaken reports whether another peer already uses name.
func (p *Presence) UsernameTaken(name, except string) bool {
	for id, info := range p.peers {
		if id != except && info.Username == name {
			return true
		}
	}
	return false
}

// List returns every peer ordered by username, then id.
func (p *Presence) List() []PeerInfo {
	list := make([]PeerInfo, 0, len(p.peers))
	for _, info := range p.peers {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Username != list[j].Username {
			return list[i].Username < list[j].Username
		}
		return list[i].PeerID < list[j].PeerID
	})
	return list
}

func (p *Presence) Len() int {
	return len(p.peers)
}
