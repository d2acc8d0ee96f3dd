package handlers

import (
	"net/http"
)

type ClassHandler struct {
	Classes Classes
}

func NewClassHandler(classes Classes) *ClassHandler {
	return &ClassHandler{Classes: classes}
}

type ClassCreatePayload struct {
	Name  string `json:"name"`
	Color string `json:"color"` // optional, picked from the palette when empty
}

type ClassUpdatePayload struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (h *ClassHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	classes, err := h.Classes.ListClasses(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *ClassHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	var payload ClassCreatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	class, err := h.Classes.CreateClass(r.Context(), projectID, payload.Name, payload.Color)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (h *ClassHandler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	classID, ok := uuidParam(w, r, "classID")
	if !ok {
		return
	}
	var payload ClassUpdatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	class, err := h.Classes.UpdateClass(r.Context(), projectID, classID, payload.Name, payload.Color)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

func (h *ClassHandler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	classID, ok := uuidParam(w, r, "classID")
	if !ok {
		return
	}
	if err := h.Classes.DeleteClass(r.Context(), projectID, classID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
