package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"idea-engine/internal/crewai"
	"idea-engine/internal/models"
	"idea-engine/internal/orchestrator"
	"idea-engine/internal/telemetry"
)

// ErrUnauthenticated is returned when no caller identity is present.
var ErrUnauthenticated = errors.New("user not authenticated")

// Orchestrator is the generation core the API fronts.
type Orchestrator interface {
	Submit(ctx context.Context, userID string) (models.Job, error)
	Reconcile(ctx context.Context, userID string) error
	HasUnprocessedJobs(ctx context.Context, userID string) (bool, error)
}

// Store is the read/ingest surface the API exposes to collaborators.
type Store interface {
	ListIdeas(ctx context.Context, userID string) ([]models.Idea, error)
	IdeaContext(ctx context.Context, videoID, commentID string) (models.IdeaContext, error)
	ListVideos(ctx context.Context, userID string) ([]models.Video, error)
	VideoWithComments(ctx context.Context, userID, videoID string) (models.Video, []models.Comment, error)
	InsertVideo(ctx context.Context, v models.Video) (models.Video, error)
	InsertComments(ctx context.Context, videoID string, comments []models.Comment) (int, error)
}

// Limiter throttles submissions per user. Nil disables limiting.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Server wires HTTP handlers for the idea-generation API.
type Server struct {
	core    Orchestrator
	store   Store
	limiter Limiter
}

// New constructs the API server.
func New(core Orchestrator, st Store, limiter Limiter) *Server {
	return &Server{core: core, store: st, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/generations", s.handleSubmit)
	r.Post("/generations/reconcile", s.handleReconcile)
	r.Get("/generations/pending", s.handlePending)
	r.Get("/ideas", s.handleListIdeas)
	r.Get("/ideas/context", s.handleIdeaContext)
	r.Get("/videos", s.handleListVideos)
	r.Get("/videos/{id}", s.handleGetVideo)
	r.Post("/videos", s.handleIngestVideo)
	r.Post("/videos/{id}/comments", s.handleIngestComments)
	return r
}

func userFromRequest(r *http.Request) (string, error) {
	if v := r.Header.Get("X-User-ID"); v != "" {
		return v, nil
	}
	return "", ErrUnauthenticated
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), userID)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.core.Submit(r.Context(), userID)
	switch {
	case errors.Is(err, orchestrator.ErrNoWorkAvailable):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, crewai.ErrSubmissionFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err := s.core.Reconcile(r.Context(), userID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	pending, err := s.core.HasUnprocessedJobs(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pending": pending})
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ideas, err := s.store.ListIdeas(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ideas == nil {
		ideas = []models.Idea{}
	}
	writeJSON(w, http.StatusOK, ideas)
}

func (s *Server) handleIdeaContext(w http.ResponseWriter, r *http.Request) {
	if _, err := userFromRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	videoID := r.URL.Query().Get("video_id")
	commentID := r.URL.Query().Get("comment_id")
	if videoID == "" || commentID == "" {
		http.Error(w, "video_id and comment_id are required", http.StatusBadRequest)
		return
	}
	ctxOut, err := s.store.IdeaContext(r.Context(), videoID, commentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ctxOut)
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	videos, err := s.store.ListVideos(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}
	writeJSON(w, http.StatusOK, videos)
}

type videoDetailResponse struct {
	Video    models.Video     `json:"video"`
	Comments []models.Comment `json:"comments"`
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")
	video, comments, err := s.store.VideoWithComments(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, videoDetailResponse{Video: video, Comments: comments})
}

func (s *Server) handleIngestVideo(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var video models.Video
	if err := json.NewDecoder(r.Body).Decode(&video); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if video.Title == "" || video.ChannelID == "" {
		http.Error(w, "title and channel_id are required", http.StatusBadRequest)
		return
	}
	video.UserID = userID
	created, err := s.store.InsertVideo(r.Context(), video)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleIngestComments(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	videoID := chi.URLParam(r, "id")
	var comments []models.Comment
	if err := json.NewDecoder(r.Body).Decode(&comments); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	for i := range comments {
		comments[i].UserID = userID
		comments[i].VideoID = videoID
	}
	inserted, err := s.store.InsertComments(r.Context(), videoID, comments)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": inserted})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
