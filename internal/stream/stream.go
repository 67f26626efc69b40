package stream

import (
	"context"
	"sync"
	"time"
)

// CheckinEvent is what door dashboards see for every processed scan.
type CheckinEvent struct {
	AttendanceID   string    `json:"attendance_id"`
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	FullName       string    `json:"full_name"`
	Organization   string    `json:"organization,omitempty"`
	CheckInTime    time.Time `json:"check_in_time"`
	AlreadyPresent bool      `json:"already_present"`
}

// Stream fan-outs check-in events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan CheckinEvent
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan CheckinEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan CheckinEvent {
	ch := make(chan CheckinEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt CheckinEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
