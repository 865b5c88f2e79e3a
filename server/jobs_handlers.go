package server

import (
	"net/http"

	"github.com/halcyonlabs/streamwatch/jobs"
)

// handleJobs handles requests to /api/jobs
// GET: list all jobs with their current status
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	all := s.manager.Jobs()
	statuses := make([]jobs.Status, 0, len(all))
	for _, j := range all {
		statuses = append(statuses, j.Status())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": statuses})
}

// handleJob handles requests to /api/jobs/{name} and /api/jobs/{name}/{action}
// GET  /api/jobs/{name}            - job status
// GET  /api/jobs/{name}/config     - job config
// PUT  /api/jobs/{name}/config     - merge a partial config (POST accepted too)
// POST /api/jobs/{name}/{action}   - start|stop|pause|resume|run|reset-stats
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/jobs/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job name")
		return
	}
	name := parts[0]

	job, ok := s.manager.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown job: "+name)
		return
	}

	if len(parts) == 1 {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, job.Status())
		return
	}

	switch parts[1] {
	case "config":
		s.handleJobConfig(w, r, job)
	default:
		s.handleJobAction(w, r, job, parts[1])
	}
}

func (s *Server) handleJobConfig(w http.ResponseWriter, r *http.Request, job *jobs.Job) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, job.Status().Config)
	case http.MethodPut, http.MethodPost:
		var partial jobs.ConfigMap
		if err := readJSON(w, r, &partial); err != nil {
			return
		}
		if len(partial) == 0 {
			writeError(w, http.StatusBadRequest, "Empty config update")
			return
		}
		if err := job.UpdateConfig(partial); err != nil {
			s.log.Errorw("Config update failed", "job", job.Name(), "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.persistConfig != nil {
			s.persistConfig(job.Name(), partial)
		}
		writeJSON(w, http.StatusOK, job.Status())
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request, job *jobs.Job, action string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.log.Infow("Job action requested", "job", job.Name(), "action", action, "remote", r.RemoteAddr)

	var err error
	status := http.StatusInternalServerError
	switch action {
	case "start":
		err = job.Start()
	case "stop":
		err = job.Stop()
	case "pause":
		err = job.Pause()
		status = http.StatusConflict
	case "resume":
		err = job.Resume()
		status = http.StatusConflict
	case "run", "run-now":
		err = job.RunNow()
		status = http.StatusConflict
	case "reset-stats":
		err = job.ResetStats()
	default:
		writeError(w, http.StatusNotFound, "Unknown action: "+action)
		return
	}

	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job.Status())
}
