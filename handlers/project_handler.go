package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/camden-git/labelsysbackend/apperr"
)

// ProjectHandler serves projects and their memberships.
type ProjectHandler struct {
	Projects    Projects
	Assignments Assignments
}

func NewProjectHandler(projects Projects, assignments Assignments) *ProjectHandler {
	return &ProjectHandler{Projects: projects, Assignments: assignments}
}

type ProjectCreatePayload struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Projects.ListFor(r.Context(), CurrentUser(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var payload ProjectCreatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	project, err := h.Projects.Create(r.Context(), payload.Name, payload.Description, CurrentUser(r).ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	project, err := h.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// ProjectUpdatePayload carries the fields to change; omitted ones stay as
// they are.
type ProjectUpdatePayload struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	var payload ProjectUpdatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	project, err := h.Projects.Update(r.Context(), projectID, payload.Name, payload.Description)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	if err := h.Projects.Delete(r.Context(), projectID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type MemberAddPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	members, err := h.Assignments.ListMembers(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	var payload MemberAddPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.UserID == uuid.Nil {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "user_id is required")
		return
	}
	member, err := h.Assignments.AddMember(r.Context(), projectID, payload.UserID, payload.Role)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// RemoveMember drops the membership and releases the member's assignments.
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	if err := h.Assignments.RemoveMember(r.Context(), projectID, userID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
