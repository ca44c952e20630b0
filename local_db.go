package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"docstitch/tables"
)

// JobRecord represents the schema of the jobs table
type JobRecord struct {
	ID         string `gorm:"primaryKey"`
	Filename   string `gorm:"size:1024"`
	Status     string `gorm:"size:32;not null"`
	Error      string `gorm:"size:65536"`
	TotalPages int
	PagesDone  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PageRecord represents the schema of the pages table. The orientation columns
// carry the decision exactly as reported to API consumers.
type PageRecord struct {
	ID                    uint   `gorm:"primaryKey"`
	JobID                 string `gorm:"size:64;index;not null"`
	Page                  int    `gorm:"not null"`
	RotationApplied       int
	DeskewApplied         float64
	OrientationConfidence float64
	OrientationMargin     float64
	OrientationMethod     string `gorm:"size:32"`
	DocumentType          string `gorm:"size:255"`
	FieldsJSON            string `gorm:"size:1048576"`
	TablesJSON            string `gorm:"size:1048576"`
}

// MergedTableRecord represents the schema of the merged_tables table
type MergedTableRecord struct {
	ID              uint   `gorm:"primaryKey"`
	JobID           string `gorm:"size:64;index;not null"`
	TableGroupID    string `gorm:"size:64;not null"`
	Page            int
	Caption         string `gorm:"size:1024"`
	InferredHeaders bool
	ColumnsJSON     string `gorm:"size:1048576"`
	RowsJSON        string `gorm:"size:16777216"`
	FragmentsJSON   string `gorm:"size:1048576"`
}

// InitializeDB initializes the SQLite database and migrates the schema
func InitializeDB() *gorm.DB {
	// Ensure db directory exists
	dbDir := "db"
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create db directory: %v", err)
	}

	dbPath := filepath.Join(dbDir, "docstitch.db")

	// Connect to SQLite database
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Migrate the schema (create the tables if they don't exist)
	err = db.AutoMigrate(&JobRecord{}, &PageRecord{}, &MergedTableRecord{})
	if err != nil {
		log.Fatalf("Failed to migrate database schema: %v", err)
	}

	return db
}

// UpsertJobRecord inserts or updates the snapshot row for a job
func UpsertJobRecord(db *gorm.DB, record JobRecord) error {
	result := db.Save(&record)
	return result.Error
}

// GetJobRecords returns every persisted job snapshot, newest first
func GetJobRecords(db *gorm.DB) ([]JobRecord, error) {
	var records []JobRecord
	result := db.Order("created_at desc").Find(&records)
	return records, result.Error
}

// InsertPageRecord persists one processed page
func InsertPageRecord(db *gorm.DB, record PageRecord) error {
	result := db.Create(&record)
	return result.Error
}

// GetPageRecord retrieves one page of a job
func GetPageRecord(db *gorm.DB, jobID string, page int) (*PageRecord, error) {
	var record PageRecord
	result := db.Where("job_id = ? AND page = ?", jobID, page).First(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

// InsertMergedTables persists all stitched tables of a job in one transaction.
// A job's tables appear either completely or not at all.
func InsertMergedTables(db *gorm.DB, jobID string, merged []tables.Merged) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range merged {
			columnsJSON, err := json.Marshal(table.Columns)
			if err != nil {
				return fmt.Errorf("error marshaling columns for group %s: %w", table.GroupID, err)
			}
			rowsJSON, err := json.Marshal(table.Rows)
			if err != nil {
				return fmt.Errorf("error marshaling rows for group %s: %w", table.GroupID, err)
			}
			fragmentsJSON, err := json.Marshal(table.Fragments)
			if err != nil {
				return fmt.Errorf("error marshaling fragments for group %s: %w", table.GroupID, err)
			}

			record := MergedTableRecord{
				JobID:           jobID,
				TableGroupID:    table.GroupID,
				Page:            table.Page,
				Caption:         table.Caption,
				InferredHeaders: table.InferredHeaders,
				ColumnsJSON:     string(columnsJSON),
				RowsJSON:        string(rowsJSON),
				FragmentsJSON:   string(fragmentsJSON),
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMergedTables retrieves the stitched tables of a job in page order
func GetMergedTables(db *gorm.DB, jobID string) ([]MergedTableRecord, error) {
	var records []MergedTableRecord
	result := db.Where("job_id = ?", jobID).Order("page, id").Find(&records)
	return records, result.Error
}

// DeleteJobArtifacts removes a job's persisted pages and tables, used before
// reprocessing
func DeleteJobArtifacts(db *gorm.DB, jobID string) error {
	if err := db.Where("job_id = ?", jobID).Delete(&PageRecord{}).Error; err != nil {
		return err
	}
	return db.Where("job_id = ?", jobID).Delete(&MergedTableRecord{}).Error
}

// mergedResponse decodes a merged-table record back into the API shape
func (r *MergedTableRecord) mergedResponse() (*MergedTableResponse, error) {
	response := &MergedTableResponse{
		TableGroupID:    r.TableGroupID,
		Page:            r.Page,
		Caption:         r.Caption,
		InferredHeaders: r.InferredHeaders,
	}
	if err := json.Unmarshal([]byte(r.ColumnsJSON), &response.Columns); err != nil {
		return nil, fmt.Errorf("error decoding columns for group %s: %w", r.TableGroupID, err)
	}
	if err := json.Unmarshal([]byte(r.RowsJSON), &response.Rows); err != nil {
		return nil, fmt.Errorf("error decoding rows for group %s: %w", r.TableGroupID, err)
	}
	if err := json.Unmarshal([]byte(r.FragmentsJSON), &response.Fragments); err != nil {
		return nil, fmt.Errorf("error decoding fragments for group %s: %w", r.TableGroupID, err)
	}
	return response, nil
}
