// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the JSON HTTP API for categories.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cattree/internal/categories"
	"cattree/internal/models"
)

// Categories groups the category endpoints.
type Categories struct {
	svc *categories.Service
}

// NewCategories creates the category handlers on top of svc.
func NewCategories(svc *categories.Service) *Categories {
	return &Categories{svc: svc}
}

type categoryResponse struct {
	Category *models.Category `json:"category"`
}

type listResponse struct {
	Categories []models.Category `json:"categories"`
}

type treeResponse struct {
	Categories []*models.TreeNode `json:"categories"`
}

type deleteResponse struct {
	Deleted int64 `json:"deleted"`
}

type propagationsResponse struct {
	Runs []models.PropagationRun `json:"runs"`
}

type rebuildResponse struct {
	Visited int `json:"visited"`
	Rebuilt int `json:"rebuilt"`
	Cleared int `json:"cleared"`
}

// Create handles POST /api/v1/categories.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := categories.CreateInput{
		Name:      req.Name,
		Icon:      req.Icon,
		Thumbnail: req.Thumbnail,
		Order:     req.Order,
		IsShow:    req.IsShow,
	}
	if req.ParentID.Value.Valid {
		parent := req.ParentID.Value.UUID
		in.ParentID = &parent
	}

	c, err := h.svc.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{Category: c})
}

// List handles GET /api/v1/categories.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Categories: items})
}

// Tree handles GET /api/v1/categories/tree.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	forest, err := h.svc.Tree(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treeResponse{Categories: forest})
}

// Get handles GET /api/v1/categories/{id}.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{Category: c})
}

// Update handles PATCH /api/v1/categories/{id}.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := categories.UpdateInput{
		Name:      req.Name,
		Icon:      req.Icon,
		Thumbnail: req.Thumbnail,
		Order:     req.Order,
		IsShow:    req.IsShow,
	}
	if req.ParentID.Set {
		parent := req.ParentID.Value
		in.Parent = &parent
	}

	c, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{Category: c})
}

// Delete handles DELETE /api/v1/categories/{id}.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: 1})
}

// DeleteMany handles DELETE /api/v1/categories with {"ids": [...]}.
func (h *Categories) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := make([]uuid.UUID, len(req.IDs))
	for i, s := range req.IDs {
		ids[i] = uuid.MustParse(s)
	}

	n, err := h.svc.DeleteMany(r.Context(), ids)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: n})
}

// Rebuild handles POST /api/v1/categories/{id}/rebuild.
func (h *Categories) Rebuild(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.Rebuild(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rebuildResponse{
		Visited: stats.Visited,
		Rebuilt: stats.Rebuilt,
		Cleared: stats.Cleared,
	})
}

// Propagations handles GET /api/v1/propagations?limit=N.
func (h *Categories) Propagations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.svc.Propagations(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, propagationsResponse{Runs: runs})
}

// categoryID parses the {id} URL parameter, answering 400 when it is not
// a UUID.
func categoryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return uuid.Nil, false
	}
	return id, true
}
