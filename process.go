package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"docstitch/extraction"
	"docstitch/orientation"
	"docstitch/tables"
)

// pageState carries one page through the pipeline stages.
type pageState struct {
	page      int
	imagePath string
	decision  orientation.Decision
	result    *extraction.PageResult
	assigned  []AssignedTable
}

func jobLogger(jobID string) *logrus.Entry {
	return log.WithField("job_id", jobID)
}

// ProcessDocument runs the full pipeline for one uploaded document: render,
// orient, extract, stitch tables, persist. Orientation is fanned out across
// pages; extraction feeds the table matcher strictly in page order.
// Cancellation aborts before the stitched tables are persisted, so a
// cancelled job never leaves partially merged tables behind.
func (app *App) ProcessDocument(ctx context.Context, job *Job) error {
	docLogger := jobLogger(job.ID)
	docLogger.Info("Starting document processing")

	jobDir := filepath.Join(app.dataDir, job.ID)
	imagePaths, err := renderPDFPages(job.PDFPath, jobDir, limitJobPages)
	if err != nil {
		return fmt.Errorf("error rendering PDF pages for job %s: %w", job.ID, err)
	}
	jobStore.updateTotalPages(job.ID, len(imagePaths))
	docLogger.WithField("page_count", len(imagePaths)).Debug("Rendered document pages")

	pages := make([]*pageState, len(imagePaths))
	for i, imagePath := range imagePaths {
		pages[i] = &pageState{page: i + 1, imagePath: imagePath}
	}

	if err := app.orientPages(ctx, pages, docLogger); err != nil {
		return err
	}

	matcher, err := app.extractPages(ctx, job, pages, docLogger)
	if err != nil {
		return err
	}

	merged := matcher.MergeGroups()
	docLogger.WithField("group_count", len(merged)).Debug("Merged table groups")

	// The stitch result is all-or-nothing: bail out before persisting when
	// the job was cancelled mid-extraction.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := InsertMergedTables(app.Database, job.ID, merged); err != nil {
		return fmt.Errorf("error persisting merged tables for job %s: %w", job.ID, err)
	}

	docLogger.WithFields(logrus.Fields{
		"pages":         len(pages),
		"merged_tables": len(merged),
	}).Info("Document processing completed")
	return nil
}

// orientPages decides and applies the page rotation for every page in
// parallel. A corrected page overwrites its rendered image so extraction
// reads upright input.
func (app *App) orientPages(ctx context.Context, pages []*pageState, docLogger *logrus.Entry) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range pages {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			img, err := loadJPEG(p.imagePath)
			if err != nil {
				return fmt.Errorf("error loading page %d: %w", p.page, err)
			}

			p.decision = app.Selector.Select(img)
			pageLogger := docLogger.WithFields(logrus.Fields{
				"page":       p.page,
				"angle":      p.decision.Angle,
				"confidence": p.decision.Confidence,
				"method":     p.decision.Method,
			})

			if !p.decision.Applied {
				pageLogger.Debug("Keeping page orientation")
				return nil
			}

			pageLogger.Info("Correcting page orientation")
			corrected := orientation.Apply(img, p.decision)
			if err := saveJPEG(p.imagePath, corrected); err != nil {
				return fmt.Errorf("error saving corrected page %d: %w", p.page, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// extractPages runs the provider over the pages strictly in order and
// persists each page record as it completes. A failed page degrades to an
// empty result so the document keeps processing; the missing page naturally
// breaks any table chain crossing it.
func (app *App) extractPages(ctx context.Context, job *Job, pages []*pageState, docLogger *logrus.Entry) (*tables.Matcher, error) {
	matcher := tables.NewMatcher(tables.DefaultConfig())

	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageLogger := docLogger.WithField("page", p.page)
		imageContent, err := os.ReadFile(p.imagePath)
		if err != nil {
			return nil, fmt.Errorf("error reading page image %d: %w", p.page, err)
		}

		result, err := app.Extractor.ExtractPage(ctx, imageContent, p.page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pageLogger.WithError(err).Warn("Page extraction failed, continuing without its content")
			result = &extraction.PageResult{}
		}
		p.result = result

		if app.debugPayloads {
			app.persistDebugPayload(p, pageLogger)
		}

		for _, candidate := range result.Tables {
			assignment := matcher.Observe(candidate)
			p.assigned = append(p.assigned, AssignedTable{
				Candidate:       candidate,
				TableGroupID:    assignment.GroupID,
				ContinuationOf:  assignment.ContinuationOf,
				InferredHeaders: assignment.InferredHeaders,
			})
		}

		if err := app.persistPage(job.ID, p); err != nil {
			pageLogger.WithError(err).Error("Failed to persist page record")
		}
		jobStore.updatePagesDone(job.ID, i+1)
	}

	return matcher, nil
}

func (app *App) persistPage(jobID string, p *pageState) error {
	fieldsJSON, err := json.Marshal(p.result.Fields)
	if err != nil {
		return err
	}
	tablesJSON, err := json.Marshal(p.assigned)
	if err != nil {
		return err
	}

	record := PageRecord{
		JobID:                 jobID,
		Page:                  p.page,
		RotationApplied:       appliedAngle(p.decision),
		DeskewApplied:         p.decision.Deskew,
		OrientationConfidence: p.decision.Confidence,
		OrientationMargin:     p.decision.Margin,
		OrientationMethod:     p.decision.Method,
		FieldsJSON:            string(fieldsJSON),
		TablesJSON:            string(tablesJSON),
	}
	if p.result.DocumentType != nil {
		record.DocumentType = p.result.DocumentType.Label
	}
	return InsertPageRecord(app.Database, record)
}

// persistDebugPayload writes the raw extraction result next to the page image
func (app *App) persistDebugPayload(p *pageState, pageLogger *logrus.Entry) {
	payload, err := json.MarshalIndent(p.result, "", "  ")
	if err != nil {
		pageLogger.WithError(err).Warn("Failed to encode debug payload")
		return
	}
	debugPath := p.imagePath + ".extraction.json"
	if err := os.WriteFile(debugPath, payload, os.ModePerm); err != nil {
		pageLogger.WithError(err).Warn("Failed to write debug payload")
	}
}

// appliedAngle reports the rotation actually applied to the page, 0 when the
// decision was gated out.
func appliedAngle(d orientation.Decision) int {
	if !d.Applied {
		return 0
	}
	return d.Angle
}

func loadJPEG(path string) (image.Image, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func saveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: jpeg.DefaultQuality})
}
