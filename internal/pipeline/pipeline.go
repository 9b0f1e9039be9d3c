package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"focusflow-go/internal/download"
	"focusflow-go/internal/logger"
	"focusflow-go/internal/resolver"
	"focusflow-go/internal/store"
	"focusflow-go/internal/summarize"
	"focusflow-go/internal/title"
	"focusflow-go/internal/transcription"
	"focusflow-go/internal/types"
)

// Runner drives one job through resolve -> download -> transcribe ->
// summarize -> title, appending a log line after every observable
// sub-step and persisting state between stages. At most one run per job
// is enforced by the store's TryStart guard.
type Runner struct {
	store    *store.Store
	resolver *resolver.Resolver
	dl       *download.Downloader
	tr       *transcription.Client
	sum      *summarize.Client
	titler   *title.Generator
	log      *logger.Logger

	mu      sync.Mutex
	seq     int
	cancels map[string]map[int]context.CancelFunc
}

func New(st *store.Store, res *resolver.Resolver, dl *download.Downloader, tr *transcription.Client, sum *summarize.Client, titler *title.Generator) *Runner {
	return &Runner{
		store:    st,
		resolver: res,
		dl:       dl,
		tr:       tr,
		sum:      sum,
		titler:   titler,
		log:      logger.New(),
		cancels:  make(map[string]map[int]context.CancelFunc),
	}
}

// Run executes the full pipeline for the job. A job already mid-pipeline
// is a silent no-op.
func (r *Runner) Run(jobID string) {
	if !r.store.TryStart(jobID) {
		return
	}
	ctx, done := r.register(jobID)
	defer done()

	logf := func(line string) { r.store.AppendLog(jobID, line) }
	logf("Starting pipeline")

	job, ok := r.store.Get(jobID)
	if !ok {
		return
	}

	resolved := r.resolver.Resolve(ctx, job.URL, logf)
	r.store.Update(jobID, func(j *types.Job) { j.ResolvedURL = resolved })

	r.store.Update(jobID, func(j *types.Job) { j.Status = types.StatusDownloading })
	filePath, err := r.dl.Download(ctx, jobID, resolved, logf)
	if err != nil {
		r.fail(jobID, err, logf)
		return
	}
	r.store.Update(jobID, func(j *types.Job) { j.FilePath = filePath })
	logf("Downloaded to " + filePath)

	r.store.Update(jobID, func(j *types.Job) { j.Status = types.StatusTranscribing })
	transcript, err := r.tr.Transcribe(ctx, jobID, filePath, logf)
	if err != nil {
		r.fail(jobID, err, logf)
		return
	}
	r.store.Update(jobID, func(j *types.Job) { j.Transcript = transcript })
	if transcript != "" {
		logf(fmt.Sprintf("Transcription complete: %d chars", len(transcript)))
	} else {
		logf("Transcription skipped or failed; proceeding")
	}

	r.store.Update(jobID, func(j *types.Job) { j.Status = types.StatusSummarizing })
	summary := ""
	if transcript != "" {
		summary = r.sum.Summarize(ctx, jobID, transcript, job.MeetingDate, logf)
	}
	r.store.Update(jobID, func(j *types.Job) { j.Summary = summary })
	if summary != "" {
		t := r.titler.FromSummary(ctx, summary)
		r.store.Update(jobID, func(j *types.Job) { j.Title = t })
		logf(fmt.Sprintf("Summary complete: %d chars", len(summary)))
	} else {
		logf("Summary skipped or failed")
	}

	r.store.Update(jobID, func(j *types.Job) { j.Status = types.StatusCompleted })
	logf("Pipeline done.")
}

// RegenerateSummary re-invokes the summarizer and title generator from an
// existing transcript without touching earlier stage results.
func (r *Runner) RegenerateSummary(jobID string) {
	job, ok := r.store.Get(jobID)
	if !ok {
		return
	}
	logf := func(line string) { r.store.AppendLog(jobID, line) }
	if job.Transcript == "" {
		logf("No transcript available -> cannot summarize")
		return
	}

	ctx, done := r.register(jobID)
	defer done()

	r.store.Update(jobID, func(j *types.Job) {
		j.Summary = ""
		j.Status = types.StatusSummarizing
	})
	logf("Regenerating summary ...")

	summary := r.sum.Summarize(ctx, jobID, job.Transcript, job.MeetingDate, logf)
	r.store.Update(jobID, func(j *types.Job) { j.Summary = summary })
	if summary != "" {
		t := r.titler.FromSummary(ctx, summary)
		r.store.Update(jobID, func(j *types.Job) { j.Title = t })
		logf(fmt.Sprintf("Summary regenerated: %d chars", len(summary)))
	} else {
		logf("Summary regeneration returned empty")
	}
	r.store.Update(jobID, func(j *types.Job) { j.Status = types.StatusCompleted })
}

// Cancel aborts every in-flight operation for the job.
func (r *Runner) Cancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels[jobID] {
		cancel()
	}
	delete(r.cancels, jobID)
}

// Shutdown cancels every in-flight operation across all jobs.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ops := range r.cancels {
		for _, cancel := range ops {
			cancel()
		}
		delete(r.cancels, id)
	}
}

// register creates a cancellable context for one operation on the job and
// returns its release func. Each operation holds its own slot: a
// regenerate finishing while a run is still downloading releases only its
// own context, and the run stays cancellable.
func (r *Runner) register(jobID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.seq++
	key := r.seq
	if r.cancels[jobID] == nil {
		r.cancels[jobID] = make(map[int]context.CancelFunc)
	}
	r.cancels[jobID][key] = cancel
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		cancel()
		if ops, ok := r.cancels[jobID]; ok {
			delete(ops, key)
			if len(ops) == 0 {
				delete(r.cancels, jobID)
			}
		}
		r.mu.Unlock()
	}
}

// fail moves the job to error with a kind+description message. No stage
// after the failing one executes.
func (r *Runner) fail(jobID string, err error, logf func(string)) {
	kind, desc := classify(err)
	msg := kind + ": " + desc
	r.store.Update(jobID, func(j *types.Job) {
		j.Status = types.StatusError
		j.Error = msg
	})
	logf("ERROR: " + msg)
}

// classify maps stage errors to the short failure kind recorded on the
// job.
func classify(err error) (string, string) {
	var cte *download.ContentTypeError
	var te *transcription.TranscriptionError
	switch {
	case errors.As(err, &cte):
		return "ContentTypeError", cte.Error()
	case errors.As(err, &te):
		return "TranscriptionError", te.Message
	default:
		return "PipelineError", err.Error()
	}
}
