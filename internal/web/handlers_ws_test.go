package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"zigbee-go-catalog/internal/coordinator"
)

func newTestHub() *WSHub {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWSHub(logger)
}

func stateEvent() coordinator.Event {
	return coordinator.Event{Type: coordinator.EventStateChange, Data: coordinator.StateChange{IEEE: "0x1"}}
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count := len(hub.clients)
	hub.mu.RUnlock()
	if count != 1 {
		t.Errorf("after register: count = %d, want 1", count)
	}

	hub.unregister <- client

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count = len(hub.clients)
	hub.mu.RUnlock()
	if count != 0 {
		t.Errorf("after unregister: count = %d, want 0", count)
	}
}

func TestWSHubBroadcastFiltersTypes(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	all := &wsClient{send: make(chan []byte, 16)}
	joins := newWSClient(nil, []string{coordinator.EventDeviceJoined})

	hub.register <- all
	hub.register <- joins
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(stateEvent())
	time.Sleep(10 * time.Millisecond)

	select {
	case msg := <-all.send:
		var evt struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatal(err)
		}
		if evt.Type != coordinator.EventStateChange {
			t.Errorf("type = %q", evt.Type)
		}
	default:
		t.Error("unfiltered client did not receive broadcast")
	}

	select {
	case msg := <-joins.send:
		t.Errorf("filtered client received %s", msg)
	default:
	}
}

func TestWSHubSlowClientEviction(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	slow := &wsClient{send: make(chan []byte, 1)}
	fast := &wsClient{send: make(chan []byte, 64)}

	hub.register <- slow
	hub.register <- fast
	time.Sleep(10 * time.Millisecond)

	// The first event fills the slow client's buffer, the second evicts it.
	hub.Broadcast(stateEvent())
	time.Sleep(10 * time.Millisecond)
	hub.Broadcast(stateEvent())
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, slowPresent := hub.clients[slow]
	_, fastPresent := hub.clients[fast]
	hub.mu.RUnlock()

	if slowPresent {
		t.Error("slow client should have been evicted")
	}
	if !fastPresent {
		t.Error("fast client should still be present")
	}
}

func TestWSHubBroadcastDropsWhenFull(t *testing.T) {
	hub := newTestHub()
	// Hub not running: nothing drains the channel.
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.Broadcast(stateEvent())
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast(stateEvent())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Broadcast blocked when channel is full")
	}
}

func TestWSHubStopIdempotent(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	hub.Stop()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Stop() panicked: %v", r)
		}
	}()
	hub.Stop()
}

func TestWSHubStopClosesClients(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-client.send; ok {
		t.Error("client.send should be closed after hub stop")
	}
}

func TestWSHubUnregisterNonExistentClient(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	unknown := &wsClient{send: make(chan []byte, 16)}
	hub.unregister <- unknown
	time.Sleep(10 * time.Millisecond)

	select {
	case unknown.send <- []byte("test"):
	default:
		t.Error("channel should still be open for non-registered client")
	}
}

func TestWSClientSetTypes(t *testing.T) {
	c := newWSClient(nil, nil)
	if !c.wants(coordinator.EventStateChange) {
		t.Error("client without filter should want every type")
	}
	c.setTypes([]string{coordinator.EventPermitJoin})
	if c.wants(coordinator.EventStateChange) || !c.wants(coordinator.EventPermitJoin) {
		t.Error("filter not applied")
	}
}

func TestParseEventTypes(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"state_change", []string{"state_change"}},
		{"state_change, device_joined,state_change", []string{"state_change", "device_joined"}},
		{"bogus,permit_join", []string{"permit_join"}},
	}
	for _, tt := range tests {
		got := parseEventTypes(tt.raw)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("parseEventTypes(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestWSSnapshotAndEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)
	hs := httptest.NewServer(ts.srv)
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?types=state_change"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var snapshot struct {
		Type string       `json:"type"`
		Data []DeviceView `json:"data"`
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.Type != eventSnapshot || len(snapshot.Data) != 1 || !snapshot.Data[0].Supported {
		t.Fatalf("snapshot = %s", data)
	}

	// Registration with the hub is asynchronous; emit until an event arrives.
	events := ts.coord.Events()
	go func() {
		for i := 0; i < 20 && ctx.Err() == nil; i++ {
			events.Emit(coordinator.Event{Type: coordinator.EventPermitJoin, Data: map[string]any{"duration": 0}})
			events.Emit(coordinator.Event{Type: coordinator.EventStateChange, Data: coordinator.StateChange{IEEE: plugAddr}})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var evt struct {
		Type string                  `json:"type"`
		Data coordinator.StateChange `json:"data"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != coordinator.EventStateChange || evt.Data.IEEE != plugAddr {
		t.Errorf("event = %s", data)
	}
}

func TestWSControlMessageChangesFilter(t *testing.T) {
	ts := newTestServer(t)
	hs := httptest.NewServer(ts.srv)
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?types=state_change"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"types":["permit_join"]}`)); err != nil {
		t.Fatal(err)
	}

	events := ts.coord.Events()
	go func() {
		for i := 0; i < 50 && ctx.Err() == nil; i++ {
			events.Emit(coordinator.Event{Type: coordinator.EventPermitJoin, Data: map[string]any{"duration": 60}})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var evt struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != coordinator.EventPermitJoin {
		t.Errorf("event = %s", data)
	}
}
