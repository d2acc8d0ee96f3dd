package handlers

import (
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/logger"
)

type ExportHandler struct {
	Splitter          Splitter
	Exporter          Exporter
	DefaultTrainRatio float64
}

func NewExportHandler(splitter Splitter, exporter Exporter, defaultTrainRatio float64) *ExportHandler {
	return &ExportHandler{Splitter: splitter, Exporter: exporter, DefaultTrainRatio: defaultTrainRatio}
}

type AutoSplitPayload struct {
	TrainRatio *float64 `json:"train_ratio"`
}

// AutoSplit shuffles the project images into train and val. An empty body
// uses the configured default ratio.
func (h *ExportHandler) AutoSplit(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	var payload AutoSplitPayload
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &payload) {
			return
		}
	}
	ratio := h.DefaultTrainRatio
	if payload.TrainRatio != nil {
		ratio = *payload.TrainRatio
	}

	result, err := h.Splitter.AutoSplit(r.Context(), projectID, ratio)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Download streams the dataset archive. The project is looked up first so a
// missing project is still a clean 404 before any byte is written.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectID")
	if !ok {
		return
	}
	project, err := h.Exporter.Project(r.Context(), projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.Exporter.ArchiveName(project)}))
	if err := h.Exporter.Export(r.Context(), projectID, w); err != nil {
		// headers are gone; the client sees a truncated archive
		logger.L().Error("dataset export aborted", zap.String("project_id", projectID.String()), zap.Error(err))
	}
}
