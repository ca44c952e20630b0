package main

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	jobCancellersMu sync.Mutex
	jobCancellers   = make(map[string]context.CancelFunc)
)

// Job represents one document extraction job
type Job struct {
	ID         string
	Filename   string // Original upload filename
	PDFPath    string // Stored copy of the uploaded PDF
	Status     string // "pending", "in_progress", "completed", "failed", "cancelled"
	Error      string // Error message when failed
	CreatedAt  time.Time
	UpdatedAt  time.Time
	PagesDone  int // Number of pages processed
	TotalPages int // Total number of pages in the document
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs map[string]*Job
}

var (
	logger = logrus.New()

	jobStore = &JobStore{
		jobs: make(map[string]*Job),
	}
	jobQueue = make(chan *Job, 100) // Buffered channel with capacity of 100 jobs
)

func init() {

	// Initialize logger
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
	logger.WithField("prefix", "EXTRACT_JOB")
}

func generateJobID() string {
	return uuid.New().String()
}

func (store *JobStore) addJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	job.PagesDone = 0 // Initialize PagesDone to 0
	store.jobs[job.ID] = job
	logger.Infof("Job added: %v", job)
}

// restoreJob reinserts a persisted job without the addJob reset semantics.
func (store *JobStore) restoreJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	store.jobs[job.ID] = job
}

func (store *JobStore) getJob(jobID string) (*Job, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	return job, exists
}

func (store *JobStore) GetAllJobs() []*Job {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]*Job, 0, len(store.jobs))
	for _, job := range store.jobs {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

func (store *JobStore) updateJobStatus(jobID, status, errMsg string) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.Status = status
		if errMsg != "" {
			job.Error = errMsg
		}
		job.UpdatedAt = time.Now()
		logger.Infof("Job status updated: %v", job)
	}
}

func (store *JobStore) updateTotalPages(jobID string, totalPages int) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.TotalPages = totalPages
		job.UpdatedAt = time.Now()
	}
}

func (store *JobStore) updatePagesDone(jobID string, pagesDone int) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.PagesDone = pagesDone
		job.UpdatedAt = time.Now()
		logger.Infof("Job pages done updated: %v", job)
	}
}

// cancelJob cancels an in-flight job's context. Returns false when the job has
// no active canceller.
func cancelJob(jobID string) bool {
	jobCancellersMu.Lock()
	defer jobCancellersMu.Unlock()
	cancel, exists := jobCancellers[jobID]
	if !exists {
		return false
	}
	cancel()
	return true
}

func startWorkerPool(app *App, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			logger.Infof("Worker %d started", workerID)
			for job := range jobQueue {
				logger.Infof("Worker %d processing job: %s", workerID, job.ID)
				processJob(app, job)
			}
		}(i)
	}
}

func processJob(app *App, job *Job) {
	if current, exists := jobStore.getJob(job.ID); exists && current.Status == "cancelled" {
		logger.Infof("Skipping cancelled job: %s", job.ID)
		return
	}

	jobStore.updateJobStatus(job.ID, "in_progress", "")
	app.persistJobSnapshot(job.ID)

	jobCtx, cancel := context.WithCancel(context.Background())
	jobCancellersMu.Lock()
	jobCancellers[job.ID] = cancel
	jobCancellersMu.Unlock()
	defer func() {
		cancel()
		jobCancellersMu.Lock()
		delete(jobCancellers, job.ID)
		jobCancellersMu.Unlock()
	}()

	// Delete old artifacts for this job before starting fresh processing
	if err := DeleteJobArtifacts(app.Database, job.ID); err != nil {
		logger.Errorf("Failed to delete old artifacts for job %s: %v", job.ID, err)
		// Continue processing even if deletion fails
	}

	err := app.ProcessDocument(jobCtx, job)
	if err != nil {
		if jobCtx.Err() == context.Canceled {
			jobStore.updateJobStatus(job.ID, "cancelled", "Job cancelled by user")
			logger.Infof("Job cancelled: %s", job.ID)
		} else {
			logger.Errorf("Error processing document for job %s: %v", job.ID, err)
			jobStore.updateJobStatus(job.ID, "failed", err.Error())
		}
		app.persistJobSnapshot(job.ID)
		return
	}

	jobStore.updateJobStatus(job.ID, "completed", "")
	app.persistJobSnapshot(job.ID)
	logger.Infof("Job completed: %s", job.ID)
}

// restoreJobHistory rehydrates the in-memory job store from persisted
// snapshots so the history endpoints keep working after a restart. Jobs that
// were still running when the process died are marked failed; their uploads
// are gone and they cannot be resumed.
func restoreJobHistory(database *gorm.DB) {
	records, err := GetJobRecords(database)
	if err != nil {
		logger.Errorf("Failed to load persisted jobs: %v", err)
		return
	}
	for _, record := range records {
		job := &Job{
			ID:         record.ID,
			Filename:   record.Filename,
			Status:     record.Status,
			Error:      record.Error,
			TotalPages: record.TotalPages,
			PagesDone:  record.PagesDone,
			CreatedAt:  record.CreatedAt,
			UpdatedAt:  record.UpdatedAt,
		}
		if job.Status == "pending" || job.Status == "in_progress" {
			job.Status = "failed"
			job.Error = "Interrupted by restart"
		}
		jobStore.restoreJob(job)
	}
	if len(records) > 0 {
		logger.Infof("Restored %d persisted jobs", len(records))
	}
}

// persistJobSnapshot mirrors the in-memory job state into the jobs table so
// the history survives a restart.
func (app *App) persistJobSnapshot(jobID string) {
	job, exists := jobStore.getJob(jobID)
	if !exists {
		return
	}
	record := JobRecord{
		ID:         job.ID,
		Filename:   job.Filename,
		Status:     job.Status,
		Error:      job.Error,
		TotalPages: job.TotalPages,
		PagesDone:  job.PagesDone,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	if err := UpsertJobRecord(app.Database, record); err != nil {
		logger.Errorf("Failed to persist snapshot for job %s: %v", jobID, err)
	}
}
