package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/bsvdl/pkg/ffmpeg"
)

var startTime = time.Now()

// UpstreamChecker confirms the social API is reachable.
type UpstreamChecker interface {
	CheckUpstream(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	upstream   UpstreamChecker
	ffmpegPath string
	scratchDir string
	logger     *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(upstream UpstreamChecker, ffmpegPath, scratchDir string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		upstream:   upstream,
		ffmpegPath: ffmpegPath,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Bluesky string `json:"bluesky,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LiveResponse is the JSON response for GET /health/live.
type LiveResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	FFmpeg    FFmpegStatus `json:"ffmpeg"`
	System    SystemStats  `json:"system"`
}

// FFmpegStatus reports whether the concat tool can be run.
type FFmpegStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
}

// SystemStats contains process and scratch disk statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	ScratchDir     string  `json:"scratch_dir"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
}

// Health handles GET /health by resolving a well-known handle.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.upstream.CheckUpstream(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Bluesky: "connected",
	})
}

// Live handles GET /health/live. It never calls upstream.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	resp := LiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		FFmpeg: FFmpegStatus{
			Available: ffmpeg.IsAvailable(h.ffmpegPath),
		},
		System: h.systemStats(),
	}

	if resp.FFmpeg.Available {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if v, err := ffmpeg.GetVersion(ctx, h.ffmpegPath); err == nil {
			resp.FFmpeg.Version = v
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) systemStats() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		ScratchDir:    h.scratchDir,
	}

	if h.scratchDir != "" {
		total, free, _, usedPct := getDiskStats(h.scratchDir)
		stats.DiskTotalBytes = total
		stats.DiskFreeBytes = free
		stats.DiskUsedPct = usedPct
	}
	return stats
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
