package session

import (
	"encoding/json"
	"log"
	"time"
)

// replaceOnline swaps in a full presence snapshot from an onlineUsersList
// push. The server is the single writer; no merging with the old set.
func (s *Store) replaceOnline(payload json.RawMessage) {
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		log.Printf("session: bad onlineUsersList payload: %v", err)
		return
	}
	s.mu.Lock()
	s.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.online[id] = struct{}{}
	}
	s.mu.Unlock()
	s.emit(EventPresence)
}

// clearPresence empties the snapshot; presence only means anything while the
// push channel is up.
func (s *Store) clearPresence() {
	s.mu.Lock()
	s.online = make(map[string]struct{})
	s.mu.Unlock()
	s.emit(EventPresence)
}

// pokePresence requests a full refetch of the online consultant list.
// Coalesces: a pending poke absorbs later ones.
func (s *Store) pokePresence() {
	s.mu.Lock()
	poke := s.poke
	s.mu.Unlock()
	if poke == nil {
		return
	}
	select {
	case poke <- struct{}{}:
	default:
	}
}

// presenceLoop refetches the online consultant list on demand and on a fixed
// fallback interval, in case a status-change push was missed.
func (s *Store) presenceLoop(stop <-chan struct{}, poke <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PresencePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-poke:
		}
		s.refetchConsultants()
	}
}

func (s *Store) refetchConsultants() {
	users, err := s.api.OnlineConsultants()
	if err != nil {
		// Last-known-good list stays on screen.
		log.Printf("session: online consultants pull: %v", err)
		return
	}
	s.mu.Lock()
	s.consultants = users
	s.mu.Unlock()
	s.emit(EventPresence)
}
