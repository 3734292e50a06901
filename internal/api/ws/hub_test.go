package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facefind/internal/auth"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/pkg/dto"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev dto.WSEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestHubFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()

	r := gin.New()
	r.GET("/ws", auth.CallerMiddleware(), hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without caller: err=%v resp=%v", err, resp)
	}

	gala := dial(t, srv, "?user_id=alice&scope=gala")
	all := dial(t, srv, "?user_id=alice")
	bob := dial(t, srv, "?user_id=bob")
	waitClients(t, hub, 3)

	hub.Broadcast(models.Notification{Type: models.NotifyFilesDeleted, Scope: "picnic", UploaderID: "alice", FileIDs: []int64{4}, Timestamp: time.Now()})
	hub.Broadcast(models.Notification{Type: models.NotifyFileProcessed, Scope: "gala", UploaderID: "carol", FileID: 6, Timestamp: time.Now()})
	hub.Broadcast(models.Notification{Type: models.NotifyFileProcessed, Scope: "gala", UploaderID: "alice", FileID: 7, Status: models.StatusEmbeddingAttached, FaceCount: 2, Timestamp: time.Now()})
	hub.Broadcast(models.Notification{Type: models.NotifyMatchFound, Scope: "gala", UploaderID: "bob", FaceID: 3, Matches: 1, Timestamp: time.Now()})

	ev := readEvent(t, gala)
	if ev.Scope != "gala" || ev.FileID != 7 || ev.Status != "embedding_attached" || ev.FaceCount != 2 {
		t.Errorf("gala client got %+v", ev)
	}

	if ev := readEvent(t, all); ev.Scope != "picnic" || len(ev.FileIDs) != 1 {
		t.Errorf("unfiltered client first event = %+v", ev)
	}
	if ev := readEvent(t, all); ev.FileID != 7 {
		t.Errorf("unfiltered client second event = %+v", ev)
	}

	// bob sees only his own match, never alice's or carol's files.
	if ev := readEvent(t, bob); ev.Type != models.NotifyMatchFound || ev.FaceID != 3 {
		t.Errorf("bob got %+v", ev)
	}

	gala.Close()
	waitClients(t, hub, 2)
}
