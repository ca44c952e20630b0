package extraction

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"docstitch/tables"
)

var log = logrus.New()

// Field is one extracted name/value pair on a page.
type Field struct {
	ID         string              `json:"id"`
	Page       int                 `json:"page"`
	Name       string              `json:"name"`
	Value      string              `json:"value"`
	Confidence float64             `json:"confidence"`
	BBox       *tables.BoundingBox `json:"bbox,omitempty"`
	SourceType string              `json:"sourceType,omitempty"`
}

// DocumentTypeHint is the recognizer's per-page classification.
type DocumentTypeHint struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// PageResult holds the extraction output for a single page
type PageResult struct {
	Fields []Field
	Tables []tables.Candidate

	// Per-page classification (optional, if the provider supports it)
	DocumentType *DocumentTypeHint

	// Additional provider-specific metadata
	Metadata map[string]string
}

// Provider defines the interface for page extraction
type Provider interface {
	ExtractPage(ctx context.Context, imageContent []byte, pageNumber int) (*PageResult, error)
}

// Config holds the extraction provider configuration
type Config struct {
	// Provider type (e.g., "llm", "azure", "google_docai")
	Provider string

	// LLM settings
	VisionLLMProvider string
	VisionLLMModel    string
	VisionLLMPrompt   string
	RateLimit         RateLimitConfig

	// Azure Document Intelligence settings
	AzureEndpoint string
	AzureAPIKey   string
	AzureModelID  string // Optional, defaults to "prebuilt-layout"
	AzureTimeout  int    // Optional, defaults to 120 seconds

	// Google Document AI settings
	GoogleProjectID   string
	GoogleLocation    string
	GoogleProcessorID string
}

// NewProvider creates a new extraction provider based on configuration
func NewProvider(config Config) (Provider, error) {
	log.Info("Initializing extraction provider: ", config.Provider)

	switch config.Provider {
	case "llm":
		if config.VisionLLMProvider == "" || config.VisionLLMModel == "" {
			return nil, fmt.Errorf("missing required vision LLM configuration")
		}
		log.WithFields(logrus.Fields{
			"provider": config.VisionLLMProvider,
			"model":    config.VisionLLMModel,
		}).Info("Using vision LLM extraction provider")
		return newLLMProvider(config)

	case "azure":
		if config.AzureEndpoint == "" || config.AzureAPIKey == "" {
			return nil, fmt.Errorf("missing required Azure Document Intelligence configuration")
		}
		return newAzureProvider(config)

	case "google_docai":
		if config.GoogleProjectID == "" || config.GoogleLocation == "" || config.GoogleProcessorID == "" {
			return nil, fmt.Errorf("missing required Google Document AI configuration")
		}
		log.WithFields(logrus.Fields{
			"location":     config.GoogleLocation,
			"processor_id": config.GoogleProcessorID,
		}).Info("Using Google Document AI provider")
		return newGoogleDocAIProvider(config)

	default:
		return nil, fmt.Errorf("unsupported extraction provider: %s", config.Provider)
	}
}

// SetLogLevel sets the logging level for the extraction package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
