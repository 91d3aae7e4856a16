package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beekhof/shiftsync/internal/message"
	shiftsync "github.com/beekhof/shiftsync/internal/sync"

	"github.com/gorilla/websocket"
)

func TestStatus_NoContentBeforeFirstUpdate(t *testing.T) {
	server := httptest.NewServer(NewRouter(NewHub(), make(chan message.Message, 1)))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
}

func TestStatus_Latest(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(NewRouter(hub, make(chan message.Message, 1)))
	defer server.Close()

	hub.Notify(shiftsync.Status{Kind: shiftsync.StatusProgress, Text: "Processing 2 shifts..."})
	hub.Notify(shiftsync.Status{Kind: shiftsync.StatusSuccess, Text: "Schedule synced to Google Calendar!"})

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var msg message.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if msg.Kind != message.KindSyncStatus {
		t.Errorf("Expected kind syncStatus, got %s", msg.Kind)
	}
	if msg.Text != "Schedule synced to Google Calendar!" || msg.Level != "success" {
		t.Errorf("Expected latest success status, got %+v", msg)
	}
}

func TestMFA_Relayed(t *testing.T) {
	inbound := make(chan message.Message, 1)
	server := httptest.NewServer(NewRouter(NewHub(), inbound))
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/mfa", "application/json", strings.NewReader(`{"code":"654321"}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", resp.StatusCode)
	}

	select {
	case msg := <-inbound:
		if msg.Kind != message.KindSubmitMFA || msg.Code != "654321" {
			t.Errorf("Unexpected message %+v", msg)
		}
	default:
		t.Fatal("Expected submitMFA message on inbound channel")
	}
}

func TestMFA_Rejected(t *testing.T) {
	inbound := make(chan message.Message, 1)
	server := httptest.NewServer(NewRouter(NewHub(), inbound))
	defer server.Close()

	for _, body := range []string{`{}`, `not json`} {
		resp, err := http.Post(server.URL+"/api/mfa", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", body, resp.StatusCode)
		}
	}
	if len(inbound) != 0 {
		t.Error("Expected nothing relayed")
	}
}

func TestWebSocket_PushAndRelay(t *testing.T) {
	hub := NewHub()
	inbound := make(chan message.Message, 1)
	server := httptest.NewServer(NewRouter(hub, inbound))
	defer server.Close()

	hub.Notify(shiftsync.Status{Kind: shiftsync.StatusInfo, Text: "No shifts found in schedule"})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first message.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("Failed to read initial status: %v", err)
	}
	if first.Text != "No shifts found in schedule" {
		t.Errorf("Expected latest status on connect, got %+v", first)
	}

	hub.Notify(shiftsync.Status{Kind: shiftsync.StatusError, Text: "Error: boom"})
	var second message.Message
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("Failed to read pushed status: %v", err)
	}
	if second.Level != "error" || second.Text != "Error: boom" {
		t.Errorf("Unexpected pushed status %+v", second)
	}

	if err := conn.WriteJSON(message.SubmitMFA("111222")); err != nil {
		t.Fatalf("Failed to send MFA: %v", err)
	}
	select {
	case msg := <-inbound:
		if msg.Code != "111222" {
			t.Errorf("Expected relayed code 111222, got %q", msg.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for relayed MFA code")
	}
}

func TestMFA_ForeignOrigin(t *testing.T) {
	inbound := make(chan message.Message, 1)
	server := httptest.NewServer(NewRouter(NewHub(), inbound))
	defer server.Close()

	tests := []struct {
		origin string
		want   int
	}{
		{"https://evil.example.com", http.StatusForbidden},
		{"http://127.0.0.1.evil.example.com", http.StatusForbidden},
		{"null", http.StatusForbidden},
		{"http://localhost:3000", http.StatusAccepted},
		{"http://127.0.0.1:8765", http.StatusAccepted},
		{"http://[::1]:8765", http.StatusAccepted},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/mfa", strings.NewReader(`{"code":"654321"}`))
		if err != nil {
			t.Fatalf("Failed to build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", tt.origin)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("Origin %q: expected %d, got %d", tt.origin, tt.want, resp.StatusCode)
		}

		relayed := len(inbound) == 1
		if relayed != (tt.want == http.StatusAccepted) {
			t.Errorf("Origin %q: relayed=%v", tt.origin, relayed)
		}
		if relayed {
			<-inbound
		}
	}
}

func TestWebSocket_ForeignOrigin(t *testing.T) {
	server := httptest.NewServer(NewRouter(NewHub(), make(chan message.Message, 1)))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("Expected dial from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 handshake response, got %v", resp)
	}

	header = http.Header{"Origin": []string{"http://localhost:8765"}}
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial from a loopback origin failed: %v", err)
	}
	conn.Close()
}
