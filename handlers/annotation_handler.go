package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/services"
)

// AnnotationHandler serves the annotations of one image. Access to the image
// is checked by RequireImageAccess before these run.
type AnnotationHandler struct {
	Annotations Annotations
	Images      Images
}

func NewAnnotationHandler(annotations Annotations, images Images) *AnnotationHandler {
	return &AnnotationHandler{Annotations: annotations, Images: images}
}

type AnnotationPayload struct {
	ClassID  uuid.UUID       `json:"class_id"`
	Vertices models.Vertices `json:"vertices"`
}

type AnnotationUpdatePayload struct {
	ClassID  *uuid.UUID       `json:"class_id,omitempty"`
	Vertices *models.Vertices `json:"vertices,omitempty"`
}

type BulkAnnotationPayload struct {
	Annotations []services.AnnotationSpec `json:"annotations"`
}

// imageInProject resolves the image route params and makes sure the image
// belongs to the project in the path.
func (h *AnnotationHandler) imageInProject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return uuid.Nil, false
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return uuid.Nil, false
	}
	if _, err := h.Images.Get(r.Context(), projectID, imageID); err != nil {
		writeAppError(w, r, err)
		return uuid.Nil, false
	}
	return imageID, true
}

func (h *AnnotationHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	imageID, ok := h.imageInProject(w, r)
	if !ok {
		return
	}
	annotations, err := h.Annotations.List(r.Context(), imageID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations)
}

func (h *AnnotationHandler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID, ok := h.imageInProject(w, r)
	if !ok {
		return
	}
	var payload AnnotationPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	annotation, err := h.Annotations.Create(r.Context(), imageID, payload.ClassID, payload.Vertices, CurrentUser(r).ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, annotation)
}

// ReplaceAnnotations swaps the whole annotation set of the image.
func (h *AnnotationHandler) ReplaceAnnotations(w http.ResponseWriter, r *http.Request) {
	imageID, ok := h.imageInProject(w, r)
	if !ok {
		return
	}
	var payload BulkAnnotationPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	annotations, err := h.Annotations.BulkReplace(r.Context(), imageID, payload.Annotations, CurrentUser(r).ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations)
}

func (h *AnnotationHandler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID, ok := h.imageInProject(w, r)
	if !ok {
		return
	}
	annotationID, ok := uuidParam(w, r, "annotationID")
	if !ok {
		return
	}
	var payload AnnotationUpdatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	annotation, err := h.Annotations.Update(r.Context(), imageID, annotationID, payload.ClassID, payload.Vertices)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, annotation)
}

func (h *AnnotationHandler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID, ok := h.imageInProject(w, r)
	if !ok {
		return
	}
	annotationID, ok := uuidParam(w, r, "annotationID")
	if !ok {
		return
	}
	if err := h.Annotations.Delete(r.Context(), imageID, annotationID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
