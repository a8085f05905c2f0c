package eventclient

import "sync"

// ChangeKind identifies what a store mutation did.
type ChangeKind string

const (
	ChangeReplaced  ChangeKind = "replaced"
	ChangeAttendees ChangeKind = "attendees"
	ChangeCreated   ChangeKind = "created"
	ChangeJoined    ChangeKind = "joined"
	ChangeLeft      ChangeKind = "left"
)

// Change is delivered to subscribers after every applied mutation.
type Change struct {
	Kind    ChangeKind
	EventID string
}

const subscriberBuffer = 64

// Store is the client-side copy of the event list plus the id of the event
// the local user attends.
//
// The joined id only changes through ApplyJoinResult and ApplyLeaveResult.
// Pushed attendee lists never touch it, so after a join or leave made from
// another session it stays stale until the next local join or leave.
type Store struct {
	mu     sync.RWMutex
	events []Event
	index  map[string]int
	joined string

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
		subs:  make(map[chan Change]struct{}),
	}
}

// Events returns a copy of the current list.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	for i, e := range s.events {
		out[i] = e.clone()
	}
	return out
}

// Event returns a copy of one event.
func (s *Store) Event(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Event{}, false
	}
	return s.events[i].clone(), true
}

// JoinedEventID returns the event the local user joined, or "".
func (s *Store) JoinedEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined
}

// ReplaceAll swaps the whole list, for example after a fresh fetch. The
// joined id is kept. An event whose local attendance is newer than the
// snapshot keeps its local attendee list and version.
func (s *Store) ReplaceAll(events []Event) {
	s.mu.Lock()
	prev, prevIndex := s.events, s.index
	s.events = make([]Event, 0, len(events))
	s.index = make(map[string]int, len(events))
	for _, e := range events {
		if _, dup := s.index[e.ID]; dup {
			continue
		}
		next := e.clone()
		if i, ok := prevIndex[e.ID]; ok && prev[i].AttendanceVersion > next.AttendanceVersion {
			next.Attendees = append([]User(nil), prev[i].Attendees...)
			next.AttendanceVersion = prev[i].AttendanceVersion
		}
		s.index[e.ID] = len(s.events)
		s.events = append(s.events, next)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplaced})
}

// ApplyEventUpdated replaces the attendee list of eventID wholesale. Unknown
// events and versions not newer than the local one are ignored.
func (s *Store) ApplyEventUpdated(eventID string, attendees []User, version int64) bool {
	s.mu.Lock()
	i, ok := s.index[eventID]
	if !ok || version <= s.events[i].AttendanceVersion {
		s.mu.Unlock()
		return false
	}
	s.events[i].Attendees = append([]User(nil), attendees...)
	s.events[i].AttendanceVersion = version
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAttendees, EventID: eventID})
	return true
}

// ApplyNewEvent appends event unless an event with the same id is present.
func (s *Store) ApplyNewEvent(event Event) bool {
	s.mu.Lock()
	if _, ok := s.index[event.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.index[event.ID] = len(s.events)
	s.events = append(s.events, event.clone())
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCreated, EventID: event.ID})
	return true
}

// ApplyJoinResult stores the server's view of the joined event and records
// it as the local user's event.
func (s *Store) ApplyJoinResult(event Event) {
	s.mu.Lock()
	s.upsertLocked(event)
	s.joined = event.ID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeJoined, EventID: event.ID})
}

// ApplyLeaveResult stores the server's view of the left event and clears the
// joined id.
func (s *Store) ApplyLeaveResult(event Event) {
	s.mu.Lock()
	s.upsertLocked(event)
	s.joined = ""
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLeft, EventID: event.ID})
}

// upsertLocked replaces or appends event. A response older than a push that
// already arrived does not roll the attendee list back.
func (s *Store) upsertLocked(event Event) {
	i, ok := s.index[event.ID]
	if !ok {
		s.index[event.ID] = len(s.events)
		s.events = append(s.events, event.clone())
		return
	}
	if event.AttendanceVersion < s.events[i].AttendanceVersion {
		return
	}
	s.events[i] = event.clone()
}

// Subscribe returns a channel of changes and a func that cancels the
// subscription. Changes are dropped for a subscriber that falls behind;
// read the store for the current state.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
