package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/halcyonlabs/streamwatch/version"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleSystem handles GET /api/system: process and host level metrics for
// the dashboard's status bar.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	out := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"wsClients":  s.hub.ClientCount(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		out["cpuPercent"] = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["memUsedPercent"] = vm.UsedPercent
		out["memTotalBytes"] = vm.Total
	}

	if s.members != nil {
		if n, err := s.members.Count(r.Context()); err == nil {
			out["trackedMembers"] = n
		}
	}

	writeJSON(w, http.StatusOK, out)
}
