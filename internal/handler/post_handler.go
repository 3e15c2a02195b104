package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"nearexpiry/internal/models"
	"nearexpiry/internal/repository"
)

type PaginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type PostsGetResponse struct {
	Posts      []models.Post      `json:"posts"`
	Pagination PaginationResponse `json:"pagination"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=published"`
}

func (h *Handlers) GetPosts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.PostService.ListPublished(r.Context(), page, limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("list posts")
		WriteError(w, "Failed to load posts", http.StatusInternalServerError)
		return
	}

	totalPages := 0
	if list.PageSize > 0 {
		totalPages = (list.Total + list.PageSize - 1) / list.PageSize
	}

	WriteSuccess(w, PostsGetResponse{
		Posts: list.Posts,
		Pagination: PaginationResponse{
			Page:       list.Page,
			Limit:      list.PageSize,
			Total:      list.Total,
			TotalPages: totalPages,
		},
	}, http.StatusOK)
}

// GetPost serves published posts only; drafts are visible through the admin route.
func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadPost(w, r)
	if !ok {
		return
	}
	if post.Status != models.StatusPublished {
		WriteError(w, "Post not found", http.StatusNotFound)
		return
	}
	WriteSuccess(w, post, http.StatusOK)
}

func (h *Handlers) GetPostAdmin(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadPost(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, post, http.StatusOK)
}

func (h *Handlers) UpdatePostStatus(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	if err := h.Validate.Var(postID, "required,uuid"); err != nil {
		WriteError(w, "Invalid post id", http.StatusBadRequest)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		WriteError(w, "Status must be \"published\"", http.StatusBadRequest)
		return
	}

	post, err := h.PostService.PublishPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotDraft) {
			WriteError(w, "Post is not a draft", http.StatusConflict)
			return
		}
		h.Log.Error().Err(err).Str("post_id", postID).Msg("publish post")
		WriteError(w, "Failed to publish post", http.StatusInternalServerError)
		return
	}

	WriteSuccess(w, post, http.StatusOK)
}

func (h *Handlers) loadPost(w http.ResponseWriter, r *http.Request) (*models.Post, bool) {
	postID := mux.Vars(r)["id"]
	if err := h.Validate.Var(postID, "required,uuid"); err != nil {
		WriteError(w, "Invalid post id", http.StatusBadRequest)
		return nil, false
	}

	post, err := h.PostService.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteError(w, "Post not found", http.StatusNotFound)
			return nil, false
		}
		h.Log.Error().Err(err).Str("post_id", postID).Msg("get post")
		WriteError(w, "Failed to load post", http.StatusInternalServerError)
		return nil, false
	}
	return post, true
}
