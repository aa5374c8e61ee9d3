package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

type streamEvent struct {
	name    string
	payload eventPayload
}

func openEventStream(t *testing.T, stack *testStack, path, token string) *bufio.Reader {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, stack.server.URL+path+"?access_token="+token, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", response.StatusCode)
	}
	reader := bufio.NewReader(response.Body)
	ready := nextEvent(t, reader, func(event streamEvent) bool { return event.name == realtimeEventReady })
	if ready.payload.Source != realtimeSourceBackend {
		t.Fatalf("unexpected ready payload %#v", ready.payload)
	}
	return reader
}

// nextEvent reads server-sent events until match accepts one or the deadline passes.
func nextEvent(t *testing.T, reader *bufio.Reader, match func(streamEvent) bool) streamEvent {
	t.Helper()
	type readResult struct {
		line string
		err  error
	}
	deadline := time.After(5 * time.Second)
	currentEventType := ""
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := reader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for realtime event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var payload eventPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			event := streamEvent{name: currentEventType, payload: payload}
			if match(event) {
				return event
			}
		}
	}
}

func TestBoardStreamDeliversChangesToEveryParticipant(t *testing.T) {
	stack := newTestStack(t)
	alice := stack.register(t, "alice@example.com", "Alice")
	bob := stack.register(t, "bob@example.com", "Bob")

	var board boardBody
	stack.do(t, http.MethodPost, "/boards", alice.Token, map[string]string{"title": "Shared"}, &board)
	stack.do(t, http.MethodPost, "/boards-invitations/"+board.ID+"/invite", alice.Token, map[string]string{"email": "bob@example.com"}, nil)
	if status := stack.do(t, http.MethodGet, "/boards-invitations/accept/"+stack.mailer.lastToken(), bob.Token, nil, nil); status != http.StatusOK {
		t.Fatalf("accept: unexpected status %d", status)
	}

	bobStream := openEventStream(t, stack, "/boards/"+board.ID+"/events", bob.Token)

	var column columnBody
	if status := stack.do(t, http.MethodPost, "/columns", alice.Token, map[string]string{"boardId": board.ID, "title": "Todo"}, &column); status != http.StatusCreated {
		t.Fatalf("create column: unexpected status %d", status)
	}

	event := nextEvent(t, bobStream, func(event streamEvent) bool {
		return event.name == RealtimeEventBoardChanged && event.payload.Type == actionColumnCreated
	})
	if event.payload.BoardID != board.ID {
		t.Fatalf("expected board %s, got %s", board.ID, event.payload.BoardID)
	}
	if len(event.payload.EntityIDs) != 1 || event.payload.EntityIDs[0] != column.ID {
		t.Fatalf("unexpected entity identifiers: %#v", event.payload.EntityIDs)
	}
}

func TestBoardStreamRefusesStrangers(t *testing.T) {
	stack := newTestStack(t)
	alice := stack.register(t, "alice@example.com", "Alice")
	mallory := stack.register(t, "mallory@example.com", "Mallory")

	var board boardBody
	stack.do(t, http.MethodPost, "/boards", alice.Token, map[string]string{"title": "Private"}, &board)

	if status := stack.do(t, http.MethodGet, "/boards/"+board.ID+"/events", mallory.Token, nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected stranger stream to be not found, got %d", status)
	}
}

func TestUserStreamCarriesNotifications(t *testing.T) {
	stack := newTestStack(t)
	alice := stack.register(t, "alice@example.com", "Alice")
	bob := stack.register(t, "bob@example.com", "Bob")

	bobStream := openEventStream(t, stack, "/events", bob.Token)

	var board boardBody
	stack.do(t, http.MethodPost, "/boards", alice.Token, map[string]string{"title": "Shared"}, &board)
	stack.do(t, http.MethodPost, "/boards-invitations/"+board.ID+"/invite", alice.Token, map[string]string{"email": "bob@example.com"}, nil)

	event := nextEvent(t, bobStream, func(event streamEvent) bool {
		return event.name == RealtimeEventNotification
	})
	if event.payload.Type != "BOARD_INVITATION" || event.payload.BoardID != board.ID {
		t.Fatalf("unexpected notification event %#v", event.payload)
	}
}
