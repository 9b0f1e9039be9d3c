package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"focusflow-go/internal/config"
	"focusflow-go/internal/download"
	"focusflow-go/internal/logger"
	"focusflow-go/internal/pipeline"
	"focusflow-go/internal/report"
	"focusflow-go/internal/resolver"
	"focusflow-go/internal/store"
	"focusflow-go/internal/summarize"
	"focusflow-go/internal/title"
	"focusflow-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "focusflow-go").Info("starting service")

	cfg := config.Load()

	st := store.New(cfg.JobsPath, cfg.DataDir)
	if err := st.Load(); err != nil {
		log.WithError(err).Fatal("failed to load jobs snapshot")
	}
	log.WithField("jobs", len(st.List())).Info("jobs snapshot loaded")

	res := resolver.New(cfg.PlaudAPIBase)
	runner := pipeline.New(
		st,
		res,
		download.New(cfg.DataDir),
		transcription.New(cfg.AssemblyAIKey, cfg.AssemblyAIBase),
		summarize.New(cfg.OpenAIKey, cfg.OpenAIBase, cfg.OpenAIModel, cfg.PromptPath),
		title.New(cfg.OpenAIKey, cfg.OpenAIBase, cfg.OpenAIModel, cfg.TitlePromptPath),
	)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /capabilities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cfg.Capabilities())
	})

	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "create_job")
		var body struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.URL == "" {
			body.URL = r.URL.Query().Get("audio_url")
		}
		url := strings.TrimSpace(body.URL)
		if url == "" {
			reqLog.Warn("missing url")
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		meetingDate := res.MeetingDate(r.Context(), url)
		job := st.Create(url, meetingDate)
		reqLog.WithField("job_id", job.ID).Info("job created")
		go runner.Run(job.ID)
		writeJSON(w, http.StatusCreated, job)
	})

	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st.List())
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := st.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("GET /jobs/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.Atoi(r.URL.Query().Get("after"))
		lines, total, status, ok := st.LogsAfter(r.PathValue("id"), after)
		if !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"lines":  lines,
			"total":  total,
			"status": status,
		})
	})

	mux.HandleFunc("POST /jobs/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := st.Get(id); !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		// duplicate runs are silent no-ops inside the runner
		go runner.Run(id)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /jobs/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := st.Get(id); !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		full := r.URL.Query().Get("full") == "true"
		if !st.Retry(id, full) {
			http.Error(w, "job is running", http.StatusConflict)
			return
		}
		go runner.Run(id)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /jobs/{id}/regenerate", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := st.Get(id); !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		go runner.RegenerateSummary(id)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("DELETE /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		runner.Cancel(id)
		if !st.Delete(id) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /export", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "export")
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="jobs.xlsx"`)
		if err := report.Write(st.List(), w); err != nil {
			reqLog.WithError(err).Error("failed to write report")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		runner.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}
