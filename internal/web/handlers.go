package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"moontale/internal/config"
	"moontale/internal/engine"
	"moontale/internal/interfaces"
	"moontale/internal/llmlog"
	"moontale/internal/models"
	"moontale/internal/storage"
	"moontale/internal/worlds"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config   *config.Config
	hub      *ChapterHub
	pipeline *engine.ChapterPipeline
	store    *storage.RedisStore
	sink     llmlog.Sink
	archive  *storage.MySQLStore
}

func NewHandlers(cfg *config.Config, hub *ChapterHub, pipeline *engine.ChapterPipeline, store *storage.RedisStore, sink llmlog.Sink, archive *storage.MySQLStore) *Handlers {
	return &Handlers{
		config:   cfg,
		hub:      hub,
		pipeline: pipeline,
		store:    store,
		sink:     sink,
		archive:  archive,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain errors to HTTP statuses.
func mapError(w http.ResponseWriter, err error) {
	var genErr *interfaces.GenerationError
	switch {
	case errors.Is(err, interfaces.ErrStoryNotFound), errors.Is(err, interfaces.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interfaces.ErrLeaseHeld):
		writeError(w, http.StatusConflict, "another generation for this story is in flight")
	case errors.Is(err, engine.ErrNothingToRewrite):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &genErr):
		writeError(w, http.StatusBadGateway, genErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"service":    "moontale",
		"stats":      h.pipeline.Stats(),
		"ws_clients": h.hub.GetClientCount(),
	})
}

// --- stories ---

type createStoryRequest struct {
	WorldID string `json:"world_id"`
}

func (h *Handlers) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorldID == "" {
		req.WorldID = h.config.Story.DefaultWorld
	}
	world := worlds.ByID(req.WorldID)
	if world == nil {
		writeError(w, http.StatusBadRequest, "unknown world: "+req.WorldID)
		return
	}

	meta := &models.StoryMeta{
		ID:        "s_" + uuid.NewString(),
		WorldID:   world.ID,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateStory(r.Context(), meta, world.InitialSummary); err != nil {
		mapError(w, err)
		return
	}
	// The first story becomes active implicitly.
	if _, err := h.store.ActiveStory(r.Context()); errors.Is(err, interfaces.ErrStoryNotFound) {
		if err := h.store.SetActiveStory(r.Context(), meta.ID); err != nil {
			log.Printf("[web] failed to set active story: %v", err)
		}
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (h *Handlers) ListStories(w http.ResponseWriter, r *http.Request) {
	metas, err := h.store.ListStories(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	active, _ := h.store.ActiveStory(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stories": metas,
		"active":  active,
	})
}

func (h *Handlers) ActivateStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	if err := h.store.SetActiveStory(r.Context(), storyID); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": storyID})
}

func (h *Handlers) ListWorlds(w http.ResponseWriter, r *http.Request) {
	type worldInfo struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Description string `json:"description"`
	}
	out := make([]worldInfo, 0, len(worlds.Registry))
	for i := range worlds.Registry {
		out = append(out, worldInfo{
			ID:          worlds.Registry[i].ID,
			DisplayName: worlds.Registry[i].DisplayName,
			Description: worlds.Registry[i].Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- state and entries ---

// activeStoryID resolves the story for the single-story convenience routes.
func (h *Handlers) activeStoryID(r *http.Request) (string, error) {
	return h.store.ActiveStory(r.Context())
}

func (h *Handlers) GetActiveState(w http.ResponseWriter, r *http.Request) {
	storyID, err := h.activeStoryID(r)
	if err != nil {
		mapError(w, err)
		return
	}
	h.renderState(w, r, storyID)
}

func (h *Handlers) GetStoryState(w http.ResponseWriter, r *http.Request) {
	h.renderState(w, r, chi.URLParam(r, "storyID"))
}

func (h *Handlers) renderState(w http.ResponseWriter, r *http.Request, storyID string) {
	state, err := h.store.LoadState(r.Context(), storyID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"story_id": storyID,
		"state":    state,
	})
}

func (h *Handlers) GetStoryEntries(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	entries, err := h.store.LoadEntries(r.Context(), storyID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"story_id": storyID,
		"entries":  entries,
	})
}

func (h *Handlers) GetStoryMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.GetStoryMeta(r.Context(), chi.URLParam(r, "storyID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handlers) GetStoryArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	records, err := h.archive.ListEntries(chi.URLParam(r, "storyID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- generation ---

type chatRequest struct {
	Message    string `json:"message"`
	AllowFinal bool   `json:"allow_final"`
}

func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	storyID, err := h.activeStoryID(r)
	if err != nil {
		mapError(w, err)
		return
	}
	h.generate(w, r, storyID)
}

func (h *Handlers) StoryChat(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, chi.URLParam(r, "storyID"))
}

func (h *Handlers) generate(w http.ResponseWriter, r *http.Request, storyID string) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if n := len([]rune(req.Message)); n > h.config.Story.MaxEventChars {
		writeError(w, http.StatusBadRequest, "message too long")
		return
	}

	entry, err := h.pipeline.GenerateNext(r.Context(), storyID, req.Message, req.AllowFinal, requestID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	state, _ := h.store.LoadState(r.Context(), storyID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"story_id": storyID,
		"entry":    entry,
		"state":    state,
	})
}

type rewriteRequest struct {
	StoryID string `json:"story_id"`
	Message string `json:"message"`
}

func (h *Handlers) RewriteLatest(w http.ResponseWriter, r *http.Request) {
	var req rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	storyID := req.StoryID
	if storyID == "" {
		var err error
		storyID, err = h.activeStoryID(r)
		if err != nil {
			mapError(w, err)
			return
		}
	}
	req.Message = strings.TrimSpace(req.Message)
	if n := len([]rune(req.Message)); n > h.config.Story.MaxEventChars {
		writeError(w, http.StatusBadRequest, "message too long")
		return
	}

	entry, err := h.pipeline.RewriteLatest(r.Context(), storyID, req.Message, requestID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	state, _ := h.store.LoadState(r.Context(), storyID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"story_id": storyID,
		"entry":    entry,
		"state":    state,
	})
}

// --- logs ---

func (h *Handlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := llmlog.Query{
		Cursor: r.URL.Query().Get("cursor"),
		Op:     r.URL.Query().Get("op"),
		Status: llmlog.Status(r.URL.Query().Get("status")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			q.Limit = n
		}
	}
	records, next, err := h.sink.List(r.Context(), q)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":        records,
		"next_cursor": next,
	})
}

func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sink.Get(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		if errors.Is(err, llmlog.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "log record not found")
			return
		}
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- admin ---

// ClearAll wipes every story and log key. Guarded by a TTL lease so two
// concurrent wipes cannot interleave.
func (h *Handlers) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.store.AcquireWipeLease(r.Context()); err != nil {
		if errors.Is(err, interfaces.ErrLeaseHeld) {
			writeError(w, http.StatusConflict, "a wipe is already in progress")
			return
		}
		mapError(w, err)
		return
	}
	defer h.store.ReleaseWipeLease(r.Context())

	removed, err := h.store.ClearAll(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	log.Printf("[web] clear-all removed %d keys", removed)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed_keys": removed,
	})
}

// --- websocket ---

func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[web] websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 64),
		Hub:  h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
