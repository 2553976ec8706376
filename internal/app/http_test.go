package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parlor/api/internal/groups"
)

func newTestHTTPServer(f *memForum) *HTTPServer {
	return NewHTTPServer(newTestService(f), "*", testLogger())
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestHTTPServer(newMemForum())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
}

func TestCreateTopicRequiresIdentity(t *testing.T) {
	server := newTestHTTPServer(newMemForum())

	req := httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(`{"boardId":1,"subject":"Hi","body":"There"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCreateTopicEndToEnd(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	server := newTestHTTPServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(`{"boardId":1,"subject":"Hi","body":"There"}`))
	req.Header.Set("X-Member-ID", "10")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var result CreateTopicResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.TopicID == 0 || result.MessageID == 0 {
		t.Fatalf("missing ids in response: %+v", result)
	}
	if _, ok := f.topics[result.TopicID]; !ok {
		t.Fatalf("topic %d not stored", result.TopicID)
	}
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	server := newTestHTTPServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(`{"boardId":99,"subject":"Hi","body":"There"}`))
	req.Header.Set("X-Member-ID", "10")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var response struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %q", response.Error.Code)
	}
}

func TestRepairEndpointRequiresModerator(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	server := newTestHTTPServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/repair", nil)
	req.Header.Set("X-Member-ID", "10")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestBoardAccessEndpoint(t *testing.T) {
	f := newMemForum()
	seedBoard(f, 1, "3")
	server := newTestHTTPServer(f)

	req := httptest.NewRequest(http.MethodGet, "/api/boards/1/access", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if allowed, _ := response["allowed"].(bool); allowed {
		t.Fatalf("guest allowed on a moderator-only board")
	}
}

func TestBoardTopicsEndpoint(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	seedTopic(f, 1, 10, 1)
	server := newTestHTTPServer(f)

	req := httptest.NewRequest(http.MethodGet, "/api/boards/1/topics", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response BoardListingResult
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.BoardID != 1 || len(response.Topics) != 1 {
		t.Fatalf("unexpected listing: %+v", response)
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	server := newTestHTTPServer(newMemForum())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Fatalf("request id = %q, want trace-42", got)
	}
}
