package handler

import (
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

// SystemMetricsResponse represents host and process health data
type SystemMetricsResponse struct {
	CPUPercent      float64 `json:"cpu_percent"`
	RAMUsedGB       float64 `json:"ram_used_gb"`
	RAMTotalGB      float64 `json:"ram_total_gb"`
	RAMPercent      float64 `json:"ram_percent"`
	DiskUsedGB      float64 `json:"disk_used_gb"`
	DiskTotalGB     float64 `json:"disk_total_gb"`
	DiskPercent     float64 `json:"disk_percent"`
	GoroutinesCount int     `json:"goroutines_count"`
	Uptime          string  `json:"uptime"`
}

// SystemHandler serves operator health endpoints
type SystemHandler struct {
	startedAt   time.Time
	cpuInterval time.Duration
	logger      zerolog.Logger
}

// NewSystemHandler creates a system handler; uptime is counted from now
func NewSystemHandler(logger zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		startedAt:   time.Now(),
		cpuInterval: 200 * time.Millisecond,
		logger:      logger.With().Str("component", "system_handler").Logger(),
	}
}

// GetSystemMetrics returns current system health metrics
// GET /api/system/metrics
func (h *SystemHandler) GetSystemMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := SystemMetricsResponse{
		GoroutinesCount: runtime.NumGoroutine(),
		Uptime:          time.Since(h.startedAt).Truncate(time.Second).String(),
	}

	// Unavailable readings stay zero
	if percents, err := cpu.PercentWithContext(ctx, h.cpuInterval, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = round2(percents[0])
	} else if err != nil {
		h.logger.Debug().Err(err).Msg("CPU stats unavailable")
	}

	if memStat, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.RAMUsedGB = round2(float64(memStat.Used) / bytesPerGB)
		resp.RAMTotalGB = round2(float64(memStat.Total) / bytesPerGB)
		resp.RAMPercent = round2(memStat.UsedPercent)
	} else {
		h.logger.Debug().Err(err).Msg("Memory stats unavailable")
	}

	if diskStat, err := disk.UsageWithContext(ctx, "."); err == nil {
		resp.DiskUsedGB = round2(float64(diskStat.Used) / bytesPerGB)
		resp.DiskTotalGB = round2(float64(diskStat.Total) / bytesPerGB)
		resp.DiskPercent = round2(diskStat.UsedPercent)
	} else {
		h.logger.Debug().Err(err).Msg("Disk stats unavailable")
	}

	writeJSON(w, NewSuccessResponse(resp))
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
