package mindwell

import (
	"sync"
	"time"
)

const typingStopDelay = 3 * time.Second

// typingTracker keeps the set of remote users currently typing, one entry per
// user keyed by user id so repeated start events refresh rather than stack.
type typingTracker struct {
	mu    sync.RWMutex
	users map[string]TypingStatus
}

func newTypingTracker() *typingTracker {
	return &typingTracker{users: make(map[string]TypingStatus)}
}

// Apply records a typing transition. Start upserts, stop removes.
func (t *typingTracker) Apply(status TypingStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status.IsTyping {
		t.users[status.UserID] = status
		return
	}
	delete(t.users, status.UserID)
}

// InConversation lists the users typing in a given conversation.
func (t *typingTracker) InConversation(conversationID string) []TypingStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var result []TypingStatus
	for _, s := range t.users {
		if s.ConversationID == conversationID {
			result = append(result, s)
		}
	}
	return result
}

// Reset drops every typing record, used on disconnect since stop events can
// no longer arrive.
func (t *typingTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = make(map[string]TypingStatus)
}

// presenceTracker holds the online user set fed by user_status_changed
// events.
type presenceTracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{online: make(map[string]struct{})}
}

func (p *presenceTracker) Apply(userID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == "online" {
		p.online[userID] = struct{}{}
		return
	}
	delete(p.online, userID)
}

func (p *presenceTracker) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]string, 0, len(p.online))
	for id := range p.online {
		result = append(result, id)
	}
	return result
}

func (p *presenceTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]struct{})
}

// stopTimer is the sender-side typing auto-stop: a single-shot timer that is
// re-armed on every keystroke and fires once after the delay. Arming replaces
// any armed timer, so only the newest deadline counts.
type stopTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
}

func newStopTimer(delay time.Duration) *stopTimer {
	if delay <= 0 {
		delay = typingStopDelay
	}
	return &stopTimer{delay: delay}
}

// Arm schedules fn after the delay, replacing any previously armed shot.
func (s *stopTimer) Arm(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, fn)
}

// Cancel drops the armed shot, if any.
func (s *stopTimer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
