package ipp

import (
	"math/rand"
	"sync"
	"time"
)

// JobState mirrors the IPP job-state enum values relevant here.
type JobState int32

const (
	JobPending           JobState = 3
	JobPendingHeld       JobState = 4
	JobProcessing        JobState = 5
	JobProcessingStopped JobState = 6
	JobCanceled          JobState = 7
	JobAborted           JobState = 8
	JobCompleted         JobState = 9
)

// jobIDSource generates random positive 16-bit job ids, process-local
// and not persisted. Keeping ids under 2^15 means they encode safely
// through the signed 32-bit IPP integer even for clients that treat
// the sign bit strictly.
type jobIDSource struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	seen map[uint16]bool
}

func newJobIDSource() *jobIDSource {
	return &jobIDSource{
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
		seen: make(map[uint16]bool),
	}
}

// Next returns a fresh random positive job id, distinct from recently
// issued ones (best effort; the map is not pruned since job volume on
// a single-printer bridge is low).
func (s *jobIDSource) Next() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := uint16(s.rnd.Intn(1<<15-1) + 1)
		if !s.seen[id] {
			s.seen[id] = true
			return id
		}
	}
}
