package main

import (
	"net/http"

	"github.com/stevecastle/vdr/jobqueue"
)

// jobsHandler serves GET /jobs: recent invocations, oldest first, without
// their results.
func (a *app) jobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		jobs := a.queue.GetJobs()
		if state := r.URL.Query().Get("state"); state != "" {
			kept := jobs[:0]
			for _, j := range jobs {
				if j.State.String() == state {
					kept = append(kept, j)
				}
			}
			jobs = kept
		}
		writeJSON(w, struct {
			Jobs   []jobqueue.Job `json:"jobs"`
			Counts map[string]int `json:"counts"`
		}{jobs, a.queue.Counts()})
	}
}

// jobHandler serves GET /jobs/{id}.
func (a *app) jobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		job, ok := a.queue.GetJob(r.PathValue("id"))
		if !ok {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, job)
	}
}
