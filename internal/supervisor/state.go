package supervisor

import (
	"sort"
	"time"

	"github.com/lambda-feedback/hellojoe/internal/worker"
)

// Record describes a live worker.
type Record struct {
	// ID is the identifier of the worker
	ID int

	// StartedAt is the time the worker was spawned
	StartedAt time.Time
}

type entry struct {
	record Record
	handle worker.Handle
}

// State is the mutable state of one pool. It is not safe for
// concurrent use, the supervisor serializes access.
type State struct {
	records  map[int]entry
	failures int
}

func newState() *State {
	return &State{
		records: make(map[int]entry),
	}
}

func (s *State) add(h worker.Handle, startedAt time.Time) {
	s.records[h.ID()] = entry{
		record: Record{ID: h.ID(), StartedAt: startedAt},
		handle: h,
	}
}

// remove deletes the record of a worker. The record is returned, as
// its start time is the baseline for the lifetime of the worker.
func (s *State) remove(id int) (Record, bool) {
	e, ok := s.records[id]
	if !ok {
		return Record{}, false
	}

	delete(s.records, id)

	return e.record, true
}

// classify applies the policy to an involuntary exit and stores the
// resulting failure count.
func (s *State) classify(policy Policy, lifetime time.Duration) Decision {
	d := policy.Decide(lifetime, s.failures)
	s.failures = d.Failures
	return d
}

func (s *State) handles() []worker.Handle {
	handles := make([]worker.Handle, 0, len(s.records))
	for _, e := range s.records {
		handles = append(handles, e.handle)
	}
	return handles
}

func (s *State) list() []Record {
	records := make([]Record, 0, len(s.records))
	for _, e := range s.records {
		records = append(records, e.record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})

	return records
}
