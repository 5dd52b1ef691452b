package wal

import (
	"fmt"
	"sync"

	"github.com/GunterMueller/cubrid/mvcc"
)

// State is the shared, process-wide log state: the in-memory copy of the
// log header plus the durable boundary published by the append subsystem.
// It is passed explicitly into every component that needs it. Both the
// durable boundary and the MVCC watermark only ever move forward.
type State struct {
	mu      sync.Mutex
	hdr     Header
	durable Lsa
}

// NewState makes the shared state from a decoded log header. The durable
// boundary starts at the header's end of log.
func NewState(hdr *Header) *State {
	return &State{
		hdr:     *hdr,
		durable: hdr.EofLsa,
	}
}

// Header returns a copy of the log header as of the last update.
func (s *State) Header() Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hdr
}

// DurableLsa returns the durable boundary: the highest lsa known to be
// fully durable and eligible for replication.
func (s *State) DurableLsa() Lsa {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.durable
}

// SetDurableLsa publishes a new durable boundary. The boundary never moves
// backward; a regression is a defect in the append subsystem.
func (s *State) SetDurableLsa(lsa Lsa) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.durable.IsNull() && lsa.Less(s.durable) {
		panic(fmt.Sprintf("wal: durable boundary moved backward: %s to %s", s.durable, lsa))
	}
	s.durable = lsa
}

// MvccNextID returns the MVCC watermark: the lowest id guaranteed not yet
// assigned to any observed transaction.
func (s *State) MvccNextID() mvcc.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hdr.MvccNextID
}

// AdvanceMvccPast ratchets the MVCC watermark so that it is strictly
// greater than id. The watermark never moves backward; ids that already
// precede it leave it unchanged.
func (s *State) AdvanceMvccPast(id mvcc.ID) {
	if id == mvcc.Null {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hdr.MvccNextID == mvcc.Null || !mvcc.IDPrecedes(id, s.hdr.MvccNextID) {
		s.hdr.MvccNextID = mvcc.Next(id)
	}
}
