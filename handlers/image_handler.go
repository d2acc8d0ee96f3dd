package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/database"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/media"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/permissions"
	"github.com/camden-git/labelsysbackend/utils"
)

// maxMultipartMemory is held in memory while parsing an upload; the rest
// spills to temporary files.
const maxMultipartMemory = 32 << 20

// ImageHandler serves project images, their assignments and their splits.
type ImageHandler struct {
	Images      Images
	Assignments Assignments
	Splitter    Splitter
	Projects    Projects
}

func NewImageHandler(images Images, assignments Assignments, splitter Splitter, projects Projects) *ImageHandler {
	return &ImageHandler{Images: images, Assignments: assignments, Splitter: splitter, Projects: projects}
}

type UploadResult struct {
	Images []models.Image `json:"images"`
	Failed []UploadError  `json:"failed,omitempty"`
}

type UploadError struct {
	Filename string `json:"filename"`
	Detail   string `json:"detail"`
}

// UploadImages stores every file of the multipart "files" field. Files that
// fail are reported next to the stored ones.
func (h *ImageHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "no files uploaded")
		return
	}

	result := UploadResult{Images: []models.Image{}}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			result.Failed = append(result.Failed, UploadError{Filename: fh.Filename, Detail: "could not read upload"})
			continue
		}
		image, err := h.Images.Upload(r.Context(), projectID, fh.Filename, f)
		f.Close()
		if err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				writeAppError(w, r, err)
				return
			}
			detail := "upload failed"
			var ae *apperr.AppError
			if errors.As(err, &ae) && ae.Code != apperr.CodeInternal {
				detail = ae.Message
			} else {
				logger.L().Error("image upload failed", zap.String("filename", fh.Filename), zap.Error(err))
			}
			result.Failed = append(result.Failed, UploadError{Filename: fh.Filename, Detail: detail})
			continue
		}
		result.Images = append(result.Images, *image)
	}

	status := http.StatusCreated
	if len(result.Images) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

// ListImages returns every image of the project to admins and to roles that
// may view all images; other members get their work queue.
func (h *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	sortOrder := r.URL.Query().Get("sort")
	if sortOrder == "" {
		sortOrder = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(sortOrder) {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "invalid sort order")
		return
	}

	user := CurrentUser(r)
	member := currentMember(r)
	var (
		images []models.Image
		err    error
	)
	if user.IsAdmin || (member != nil && permissions.RoleHas(member.Role, permissions.ImageViewAll)) {
		images, err = h.Images.List(r.Context(), projectID, sortOrder)
	} else {
		images, err = h.Assignments.WorkQueue(r.Context(), projectID, user.ID)
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (h *ImageHandler) ListUnassigned(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	images, err := h.Assignments.ListUnassigned(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (h *ImageHandler) MyImages(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	images, err := h.Assignments.WorkQueue(r.Context(), projectID, CurrentUser(r).ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (h *ImageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	stats, err := h.Assignments.Stats(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// StatsWorkbook serves the member progress as an xlsx download.
func (h *ImageHandler) StatsWorkbook(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	project, err := h.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	stats, err := h.Assignments.Stats(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	rows := make([]utils.ProgressRow, len(stats))
	for i, s := range stats {
		rows[i] = utils.ProgressRow{Username: s.Username, Role: s.Role, Assigned: s.Assigned, Annotated: s.Annotated}
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": project.Name + "_progress.xlsx"}))
	if err := utils.WriteProgressReport(w, rows); err != nil {
		logger.L().Error("failed to write progress workbook", zap.String("project_id", projectID.String()), zap.Error(err))
	}
}

type AssignPayload struct {
	UserID   uuid.UUID   `json:"user_id"`
	ImageIDs []uuid.UUID `json:"image_ids"`
}

type AutoAssignPayload struct {
	UserIDs      []uuid.UUID `json:"user_ids"`
	CountPerUser *int        `json:"count_per_user"`
}

type AssignResponse struct {
	Assigned int `json:"assigned"`
}

func (h *ImageHandler) Assign(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	var payload AssignPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.UserID == uuid.Nil {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "user_id is required")
		return
	}
	n, err := h.Assignments.ManualAssign(r.Context(), projectID, payload.UserID, payload.ImageIDs)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{Assigned: n})
}

func (h *ImageHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	var payload AutoAssignPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	n, err := h.Assignments.AutoAssign(r.Context(), projectID, payload.UserIDs, payload.CountPerUser)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{Assigned: n})
}

func (h *ImageHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return
	}
	if err := h.Assignments.Unassign(r.Context(), projectID, imageID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return
	}
	image, err := h.Images.Get(r.Context(), projectID, imageID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, image)
}

func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return
	}
	image, rc, err := h.Images.Open(r.Context(), projectID, imageID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer rc.Close()
	serveBlob(w, rc, image.StoragePath)
}

func (h *ImageHandler) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return
	}
	rc, err := h.Images.OpenThumbnail(r.Context(), projectID, imageID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer rc.Close()
	serveBlob(w, rc, "thumbnail"+media.ThumbnailFileExtension)
}

func serveBlob(w http.ResponseWriter, rc io.Reader, name string) {
	w.Header().Set("Content-Type", media.ContentType(name))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		logger.L().Warn("error streaming image file", zap.Error(err))
	}
}

func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return
	}
	if err := h.Images.Delete(r.Context(), projectID, imageID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SplitPayload struct {
	Split *string `json:"split"` // "train", "val" or null
}

func (h *ImageHandler) SetSplit(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	imageID, ok := uuidParam(w, r, "imageID")
	if !ok {
		return
	}
	var payload SplitPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	image, err := h.Splitter.SetSplit(r.Context(), projectID, imageID, payload.Split)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, image)
}
