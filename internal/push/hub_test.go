package push

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestConn upgrades a client/server pair and registers the server side
// with the hub.
func dialTestConn(t *testing.T, hub *Hub, userID string, isAdmin bool) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register(userID, isAdmin, ws)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func readMessage(t *testing.T, client *websocket.Conn) Message {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return msg
}

func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("connection count = %d, want %d", hub.ConnectionCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendToUserDeliversToThatUserOnly(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	alice := dialTestConn(t, hub, "user-alice", false)
	bob := dialTestConn(t, hub, "user-bob", false)
	waitForConnections(t, hub, 2)

	hub.SendToUser("user-alice", Message{
		Type:     "new-notification",
		Title:    "Request approved",
		Category: "approval-decision",
	})

	got := readMessage(t, alice)
	if got.Title != "Request approved" {
		t.Fatalf("title = %q, want %q", got.Title, "Request approved")
	}

	// Bob must not receive Alice's message.
	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatal("expected no message for bob")
	}
}

func TestSendToOfflineUserIsNoop(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Should not panic or block.
	hub.SendToUser("user-ghost", Message{Type: "new-notification", Title: "hello"})
}

func TestBroadcastToAdminsSkipsMembers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	admin := dialTestConn(t, hub, "user-admin", true)
	member := dialTestConn(t, hub, "user-member", false)
	waitForConnections(t, hub, 2)

	hub.BroadcastToAdmins(Message{
		Type:     "new-notification",
		Title:    "Request pending",
		Category: "approval-request",
	})

	got := readMessage(t, admin)
	if got.Category != "approval-request" {
		t.Fatalf("category = %q, want approval-request", got.Category)
	}

	_ = member.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := member.ReadMessage(); err == nil {
		t.Fatal("expected no message for member")
	}
}

func TestFanOutSurvivesConcurrentDisconnects(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	clients := make([]*websocket.Conn, 0, 4)
	for i := 0; i < 4; i++ {
		clients = append(clients, dialTestConn(t, hub, "user-busy", false))
	}
	waitForConnections(t, hub, 4)

	// Disconnects race the fan-out: closing sockets triggers removal while
	// senders are mid-delivery. This must evict cleanly, never panic.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, client := range clients {
			client.Close()
		}
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.SendToUser("user-busy", Message{Type: "new-notification", Title: "tick"})
			}
		}()
	}
	wg.Wait()

	waitForConnections(t, hub, 0)
}

func TestDisconnectRemovesConnection(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client := dialTestConn(t, hub, "user-1", false)
	waitForConnections(t, hub, 1)

	client.Close()
	waitForConnections(t, hub, 0)
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first := dialTestConn(t, hub, "user-1", false)
	second := dialTestConn(t, hub, "user-1", false)
	waitForConnections(t, hub, 2)

	hub.SendToUser("user-1", Message{Type: "new-notification", Title: "both"})

	if got := readMessage(t, first); got.Title != "both" {
		t.Fatalf("first conn title = %q", got.Title)
	}
	if got := readMessage(t, second); got.Title != "both" {
		t.Fatalf("second conn title = %q", got.Title)
	}
}
