package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/iconidentify/bsvdl/internal/domain"
)

// defaultQuality applies when the form has no quality field at all.
const defaultQuality = "320p"

// VideoProcessor runs the download pipeline for one post URL.
type VideoProcessor interface {
	Process(ctx context.Context, postURL, quality string) (*domain.AssembledVideo, error)
}

// ProcessHandler handles video download requests.
type ProcessHandler struct {
	videoSvc    VideoProcessor
	maxFormSize int64
	logger      *slog.Logger
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(videoSvc VideoProcessor, maxFormSize int64, logger *slog.Logger) *ProcessHandler {
	if maxFormSize <= 0 {
		maxFormSize = 64 * 1024
	}
	return &ProcessHandler{
		videoSvc:    videoSvc,
		maxFormSize: maxFormSize,
		logger:      logger,
	}
}

// ProcessResponse is the JSON body returned when a request fails.
type ProcessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Process handles POST /process. It accepts url-encoded or multipart forms
// with post_url and quality fields and answers with the MP4 as an attachment.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFormSize)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(h.maxFormSize)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		h.logger.Warn("invalid form", "error", err)
		h.writeFailure(w, "Invalid form data")
		return
	}

	postURL := r.PostFormValue("post_url")
	if postURL == "" {
		h.writeFailure(w, "No post URL provided")
		return
	}

	quality := defaultQuality
	if _, ok := r.PostForm["quality"]; ok {
		quality = r.PostFormValue("quality")
	}

	h.logger.Info("processing request", "post_url", postURL, "quality", quality)

	video, err := h.videoSvc.Process(r.Context(), postURL, quality)
	if err != nil && errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		// The timeout middleware answers with 504.
		h.logger.Error("request timed out",
			"post_url", postURL,
			"stage", domain.StageOf(err),
			"error", err,
		)
		return
	}
	if err != nil {
		h.logger.Error("failed to process post",
			"post_url", postURL,
			"stage", domain.StageOf(err),
			"error", err,
		)
		h.writeFailure(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": video.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(video.Size()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(video.Data); err != nil {
		h.logger.Warn("failed to write video response", "filename", video.Filename, "error", err)
	}
}

func (h *ProcessHandler) writeFailure(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ProcessResponse{
		Status:  "error",
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
