package hub

import "testing"

func newQueueSocket(capacity int) *socket {
	return &socket{
		id:       "sock-1",
		outbound: make(chan []byte, capacity),
		done:     make(chan struct{}),
		role:     roleAnonymous,
		sessions: make(map[string]bool),
	}
}

func TestEnqueueShedsDroppableFramesPastSoftLimit(t *testing.T) {
	sk := newQueueSocket(4)
	soft := 2

	if !sk.enqueue([]byte("a"), true, soft) || !sk.enqueue([]byte("b"), true, soft) {
		t.Fatalf("frames below soft limit were dropped")
	}
	if sk.enqueue([]byte("c"), true, soft) {
		t.Fatalf("droppable frame accepted past soft limit")
	}
	// Control frames keep flowing up to the hard capacity.
	if !sk.enqueue([]byte("d"), false, soft) || !sk.enqueue([]byte("e"), false, soft) {
		t.Fatalf("control frames rejected below hard capacity")
	}
}

func TestEnqueueClosesSocketOnControlOverflow(t *testing.T) {
	sk := newQueueSocket(1)
	if !sk.enqueue([]byte("a"), false, 1) {
		t.Fatalf("first control frame rejected")
	}
	if sk.enqueue([]byte("b"), false, 1) {
		t.Fatalf("control frame accepted on a full queue")
	}
	select {
	case <-sk.done:
	default:
		t.Fatalf("socket not closed after control overflow")
	}
}

func TestEnqueueRejectsAfterClose(t *testing.T) {
	sk := newQueueSocket(4)
	sk.close()
	if sk.enqueue([]byte("a"), false, 2) {
		t.Fatalf("enqueue succeeded on a closed socket")
	}
}

func TestRoleAndMembershipTracking(t *testing.T) {
	sk := newQueueSocket(1)
	if sk.getRole() != roleAnonymous {
		t.Fatalf("initial role = %q", sk.getRole())
	}
	sk.setRole(roleClient)
	sk.joinedSession("S-1")
	sk.joinedSession("S-2")
	sk.leftSession("S-1")

	sk.mu.Lock()
	defer sk.mu.Unlock()
	if len(sk.sessions) != 1 || !sk.sessions["S-2"] {
		t.Fatalf("sessions = %v, want only S-2", sk.sessions)
	}
}
