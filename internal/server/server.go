// Package server is the ops listener: liveness, host and service status,
// and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/bowerhall/chordial/internal/logger"
)

// Counts are the service figures reported on /status
type Counts struct {
	Users          int `json:"users"`
	Messages       int `json:"messages"`
	ActiveMemories int `json:"active_memories"`
	Sessions       int `json:"sessions"`
	TokensUsed     int `json:"tokens_used_today"`
	TokenLimit     int `json:"token_limit"`
}

// CountFunc gathers Counts on demand
type CountFunc func(ctx context.Context) (Counts, error)

type HostStats struct {
	Hostname string  `json:"hostname"`
	OS       string  `json:"os"`
	Arch     string  `json:"arch"`
	CPUUsage float64 `json:"cpu_usage_percent"`
	MemTotal uint64  `json:"mem_total_bytes"`
	MemUsed  uint64  `json:"mem_used_bytes"`
	MemUsage float64 `json:"mem_usage_percent"`
	DiskPath string  `json:"disk_path"`
	DiskUsed uint64  `json:"disk_used_bytes"`
	DiskFree uint64  `json:"disk_free_bytes"`
}

type StatusResponse struct {
	HostStats
	Counts
	Uptime string `json:"uptime"`
}

type Server struct {
	addr    string
	counts  CountFunc
	host    func() HostStats
	started time.Time
}

func New(addr string, counts CountFunc) *Server {
	return &Server{addr: addr, counts: counts, host: hostStats, started: time.Now()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops listener starting", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Debug("ops listener shutting down")
	return server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{
		HostStats: s.host(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}

	if s.counts != nil {
		counts, err := s.counts(r.Context())
		if err != nil {
			logger.Error("failed to gather status counts", "error", err)
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		status.Counts = counts
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func hostStats() HostStats {
	hostname, _ := os.Hostname()

	stats := HostStats{
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		DiskPath: "/",
	}

	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		stats.CPUUsage = cpuPercent[0]
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		stats.MemTotal = memInfo.Total
		stats.MemUsed = memInfo.Used
		stats.MemUsage = memInfo.UsedPercent
	}

	if diskInfo, err := disk.Usage("/"); err == nil {
		stats.DiskUsed = diskInfo.Used
		stats.DiskFree = diskInfo.Free
	}

	return stats
}
