package api

import (
	"encoding/json"
	"net/http"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ProjectHandler struct {
	store  ProjectStore
	scheme string
	host   string
}

func NewProjectHandler(s ProjectStore, scheme, host string) *ProjectHandler {
	return &ProjectHandler{store: s, scheme: scheme, host: host}
}

func (h *ProjectHandler) response(p domain.Project) domain.ProjectResponse {
	return domain.ProjectResponse{Project: p, DSN: p.DSN(h.scheme, h.host)}
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	project, err := h.store.CreateProject(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, h.response(*project))
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	out := make([]domain.ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, h.response(p))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get project")
		return
	}
	if project == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}

	respondJSON(w, http.StatusOK, h.response(*project))
}
