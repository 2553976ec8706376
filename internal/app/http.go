package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"parlor/api/internal/access"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Use(s.withCORS)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Post("/api/topics", s.handleCreateTopic)
	r.Post("/api/topics/{topicID}/messages", s.handleCreatePost)
	r.Post("/api/topics/{topicID}/move", s.handleMoveTopic)
	r.Post("/api/topics/{topicID}/lock", s.handleLockTopic)

	r.Patch("/api/messages/{messageID}", s.handleEditPost)
	r.Delete("/api/messages/{messageID}", s.handleDeletePost)
	r.Post("/api/messages/{messageID}/report", s.handleReportMessage)
	r.Get("/api/messages/{messageID}/locate", s.handleLocateMessage)

	r.Get("/api/polls/{pollID}", s.handleGetPoll)
	r.Get("/api/polls/{pollID}/voters", s.handlePollVoters)
	r.Post("/api/polls/{pollID}/votes", s.handleCastVote)

	r.Get("/api/boards/{boardID}/topics", s.handleBoardListing)
	r.Get("/api/boards/{boardID}/access", s.handleBoardAccess)

	r.Post("/api/admin/repair", s.handleRepair)

	return r
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Member-ID, Idempotency-Key, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerID reads the member identity established by the auth collaborator
// upstream. nil means guest.
func callerID(r *http.Request) *int64 {
	raw := r.Header.Get("X-Member-ID")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready"})
}

func (s *HTTPServer) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}

	var input CreateTopicInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	input.AuthorID = *caller
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")

	result, err := s.service.CreateTopic(r.Context(), input)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	topicID, ok := pathID(r, "topicID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid topic id", nil)
		return
	}

	var input CreatePostInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	input.TopicID = topicID
	input.AuthorID = *caller
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")

	result, err := s.service.CreatePost(r.Context(), input)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleEditPost(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid message id", nil)
		return
	}

	var input EditPostInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	input.MessageID = messageID
	input.EditorID = *caller

	if err := s.service.EditPost(r.Context(), input); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid message id", nil)
		return
	}

	result, err := s.service.DeletePost(r.Context(), messageID, *caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleMoveTopic(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	topicID, ok := pathID(r, "topicID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid topic id", nil)
		return
	}

	var input struct {
		TargetBoardID int64 `json:"targetBoardId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.TargetBoardID <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "a target board id is required", nil)
		return
	}

	result, err := s.service.MoveTopic(r.Context(), topicID, input.TargetBoardID, *caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLockTopic(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	topicID, ok := pathID(r, "topicID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid topic id", nil)
		return
	}

	var input struct {
		Locked bool `json:"locked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}

	result, err := s.service.LockTopic(r.Context(), topicID, input.Locked, *caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleReportMessage(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid message id", nil)
		return
	}

	var input struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}

	result, err := s.service.ReportMessage(r.Context(), messageID, *caller, input.Comment)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleLocateMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid message id", nil)
		return
	}

	result, err := s.service.LocateMessage(r.Context(), messageID, callerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pathID(r, "pollID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid poll id", nil)
		return
	}

	view, err := s.service.PollViewFor(r.Context(), pollID, callerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handlePollVoters(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pathID(r, "pollID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid poll id", nil)
		return
	}

	voters, err := s.service.PollVoters(r.Context(), pollID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voters": voters})
}

func (s *HTTPServer) handleCastVote(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a member identity is required", nil)
		return
	}
	pollID, ok := pathID(r, "pollID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid poll id", nil)
		return
	}

	var input struct {
		ChoiceIDs []int64 `json:"choiceIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}

	view, err := s.service.CastVote(r.Context(), pollID, *caller, input.ChoiceIDs)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleBoardListing(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(r, "boardID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid board id", nil)
		return
	}

	result, err := s.service.BoardListing(r.Context(), boardID, callerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleBoardAccess(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(r, "boardID")
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid board id", nil)
		return
	}

	callerGroups := s.service.ResolveGroups(r.Context(), callerID(r))
	allowed := s.service.CanAccessBoard(r.Context(), boardID, callerGroups)
	writeJSON(w, http.StatusOK, map[string]any{"boardId": boardID, "allowed": allowed})
}

func (s *HTTPServer) handleRepair(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	callerGroups := s.service.ResolveGroups(r.Context(), caller)
	if !access.CanModerate(callerGroups) {
		writeError(w, http.StatusForbidden, "PERMISSION_DENIED", "repair requires a moderator", nil)
		return
	}

	report, err := s.service.RepairPointers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var de *DomainError
	if errors.As(err, &de) {
		writeError(w, de.Status, de.Code, de.Message, de.Details)
		return
	}
	requestID, _ := r.Context().Value(requestIDKey).(string)
	s.logger.Error("unhandled service error", "request_id", requestID, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
