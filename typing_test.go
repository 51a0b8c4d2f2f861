package mindwell

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingTrackerUpsertsPerUser(t *testing.T) {
	tr := newTypingTracker()
	tr.Apply(TypingStatus{ConversationID: "c1", UserID: "u1", UserName: "Robin", IsTyping: true})
	tr.Apply(TypingStatus{ConversationID: "c1", UserID: "u1", UserName: "Robin", IsTyping: true})
	tr.Apply(TypingStatus{ConversationID: "c1", UserID: "u2", UserName: "Sam", IsTyping: true})
	tr.Apply(TypingStatus{ConversationID: "c2", UserID: "u3", IsTyping: true})

	assert.Len(t, tr.InConversation("c1"), 2)
	assert.Len(t, tr.InConversation("c2"), 1)

	tr.Apply(TypingStatus{ConversationID: "c1", UserID: "u1", IsTyping: false})
	assert.Len(t, tr.InConversation("c1"), 1)

	tr.Reset()
	assert.Empty(t, tr.InConversation("c1"))
	assert.Empty(t, tr.InConversation("c2"))
}

func TestStopTimerFiresOnceAfterReArming(t *testing.T) {
	st := newStopTimer(30 * time.Millisecond)
	var fires atomic.Int32

	// Each arm replaces the previous shot.
	st.Arm(func() { fires.Add(1) })
	st.Arm(func() { fires.Add(1) })
	st.Arm(func() { fires.Add(1) })

	require.Eventually(t, func() bool {
		return fires.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// No further shots are outstanding.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fires.Load())
}

func TestStopTimerCancel(t *testing.T) {
	st := newStopTimer(20 * time.Millisecond)
	var fires atomic.Int32

	st.Arm(func() { fires.Add(1) })
	st.Cancel()
	st.Cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fires.Load())
}

func TestPresenceTrackerApplyAndReset(t *testing.T) {
	p := newPresenceTracker()
	p.Apply("u1", "online")
	p.Apply("u1", "online")
	p.Apply("u2", "online")
	assert.Len(t, p.Online(), 2)

	p.Apply("u1", "offline")
	assert.Equal(t, []string{"u2"}, p.Online())

	p.Reset()
	assert.Empty(t, p.Online())
}
