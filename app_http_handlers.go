package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// submitJobHandler accepts a PDF upload and enqueues an extraction job
func (app *App) submitJobHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file upload"})
		return
	}

	jobID := generateJobID()
	uploadDir := filepath.Join(app.dataDir, "uploads")
	if err := os.MkdirAll(uploadDir, os.ModePerm); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload directory"})
		return
	}

	pdfPath := filepath.Join(uploadDir, fmt.Sprintf("%s.pdf", jobID))
	if err := c.SaveUploadedFile(fileHeader, pdfPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store uploaded file"})
		return
	}

	totalPages, err := validatePDF(pdfPath)
	if err != nil {
		os.Remove(pdfPath)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &Job{
		ID:         jobID,
		Filename:   fileHeader.Filename,
		PDFPath:    pdfPath,
		Status:     "pending",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		TotalPages: totalPages,
	}

	// Add job to store and queue
	jobStore.addJob(job)
	app.persistJobSnapshot(job.ID)
	jobQueue <- job

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "total_pages": totalPages})
}

func jobStatusResponse(job *Job) gin.H {
	response := gin.H{
		"job_id":      job.ID,
		"filename":    job.Filename,
		"status":      job.Status,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
		"pages_done":  job.PagesDone,
		"total_pages": job.TotalPages,
	}
	if job.Status == "failed" {
		response["error"] = job.Error
	}
	return response
}

func (app *App) getJobStatusHandler(c *gin.Context) {
	jobID := c.Param("job_id")

	job, exists := jobStore.getJob(jobID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	response := jobStatusResponse(job)
	if job.Status == "completed" {
		summaries, err := app.tableGroupSummaries(jobID)
		if err != nil {
			logger.Errorf("Failed to summarize table groups for job %s: %v", jobID, err)
		} else {
			response["tableGroups"] = summaries
		}
	}

	c.JSON(http.StatusOK, response)
}

func (app *App) getAllJobsHandler(c *gin.Context) {
	jobs := jobStore.GetAllJobs()

	jobList := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		jobList = append(jobList, jobStatusResponse(job))
	}

	c.JSON(http.StatusOK, jobList)
}

func (app *App) cancelJobHandler(c *gin.Context) {
	jobID := c.Param("job_id")

	job, exists := jobStore.getJob(jobID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	if job.Status != "pending" && job.Status != "in_progress" {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Job is already %s", job.Status)})
		return
	}

	if !cancelJob(jobID) {
		// Pending jobs have no canceller yet; mark them directly so the
		// worker skips them.
		jobStore.updateJobStatus(jobID, "cancelled", "Job cancelled by user")
		app.persistJobSnapshot(jobID)
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": "cancelling"})
}

func (app *App) getPageHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	record, err := GetPageRecord(app.Database, jobID, page)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return
	}

	response := PageResponse{
		Page:                  record.Page,
		RotationApplied:       record.RotationApplied,
		DeskewApplied:         record.DeskewApplied,
		OrientationConfidence: record.OrientationConfidence,
		OrientationMargin:     record.OrientationMargin,
		OrientationMethod:     record.OrientationMethod,
		DocumentType:          record.DocumentType,
	}
	if err := json.Unmarshal([]byte(record.FieldsJSON), &response.Fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode page fields"})
		return
	}
	if err := json.Unmarshal([]byte(record.TablesJSON), &response.Tables); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode page tables"})
		return
	}

	c.JSON(http.StatusOK, response)
}

func (app *App) getTablesHandler(c *gin.Context) {
	jobID := c.Param("job_id")

	records, err := GetMergedTables(app.Database, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load merged tables"})
		return
	}

	responses := make([]MergedTableResponse, 0, len(records))
	for i := range records {
		response, err := records[i].mergedResponse()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		responses = append(responses, *response)
	}

	c.JSON(http.StatusOK, responses)
}

// tableGroupSummaries condenses the persisted merged tables of a job for the
// job detail view.
func (app *App) tableGroupSummaries(jobID string) ([]TableGroupSummary, error) {
	records, err := GetMergedTables(app.Database, jobID)
	if err != nil {
		return nil, err
	}

	summaries := make([]TableGroupSummary, 0, len(records))
	for i := range records {
		merged, err := records[i].mergedResponse()
		if err != nil {
			return nil, err
		}

		summary := TableGroupSummary{
			TableGroupID: merged.TableGroupID,
			Fragments:    len(merged.Fragments),
			RowCount:     len(merged.Rows),
			Caption:      merged.Caption,
		}
		for _, fragment := range merged.Fragments {
			summary.Pages = append(summary.Pages, fragment.Page)
		}
		for _, column := range merged.Columns {
			summary.Headers = append(summary.Headers, column.Header)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
