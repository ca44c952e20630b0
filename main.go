package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"docstitch/extraction"
	"docstitch/orientation"
	"docstitch/tables"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables
	extractionProvider = os.Getenv("EXTRACTION_PROVIDER")
	visionLlmProvider  = os.Getenv("VISION_LLM_PROVIDER")
	visionLlmModel     = os.Getenv("VISION_LLM_MODEL")
	azureEndpoint      = os.Getenv("AZURE_DOCAI_ENDPOINT")
	azureAPIKey        = os.Getenv("AZURE_DOCAI_KEY")
	azureModelID       = os.Getenv("AZURE_DOCAI_MODEL_ID")
	googleProjectID    = os.Getenv("GOOGLE_PROJECT_ID")
	googleLocation     = os.Getenv("GOOGLE_LOCATION")
	googleProcessorID  = os.Getenv("GOOGLE_PROCESSOR_ID")
	dataDir            = envOrDefault("DATA_DIR", "data")
	logLevel           = strings.ToLower(os.Getenv("LOG_LEVEL"))
	limitJobPages      = envInt("LIMIT_PAGES", 0)
	visionRPM          = envInt("VISION_REQUESTS_PER_MINUTE", 0)
	debugPayloads      = os.Getenv("DEBUG_EXTRACTION_PAYLOADS") == "true"

	// Templates
	visionTemplate *template.Template
	templateMutex  sync.RWMutex
)

// App struct to hold dependencies
type App struct {
	Database      *gorm.DB
	Extractor     extraction.Provider
	Selector      *orientation.Selector
	dataDir       string
	debugPayloads bool
}

func main() {
	// Validate Environment Variables
	validateEnvVars()

	// Initialize logrus logger
	initLogger()

	// Initialize Database
	database := InitializeDB()
	restoreJobHistory(database)

	// Load Templates
	loadTemplates()

	// Initialize extraction provider
	provider, err := extraction.NewProvider(extraction.Config{
		Provider:          extractionProvider,
		VisionLLMProvider: visionLlmProvider,
		VisionLLMModel:    visionLlmModel,
		VisionLLMPrompt:   renderVisionPrompt(),
		RateLimit: extraction.RateLimitConfig{
			RequestsPerMinute: float64(visionRPM),
		},
		AzureEndpoint:     azureEndpoint,
		AzureAPIKey:       azureAPIKey,
		AzureModelID:      azureModelID,
		AzureTimeout:      envInt("AZURE_DOCAI_TIMEOUT_SECONDS", 0),
		GoogleProjectID:   googleProjectID,
		GoogleLocation:    googleLocation,
		GoogleProcessorID: googleProcessorID,
	})
	if err != nil {
		log.Fatalf("Failed to create extraction provider: %v", err)
	}

	// Initialize App with dependencies
	app := &App{
		Database:      database,
		Extractor:     provider,
		Selector:      orientation.NewSelector(orientation.DefaultConfig()),
		dataDir:       dataDir,
		debugPayloads: debugPayloads,
	}

	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()

	// API routes
	api := router.Group("/api")
	{
		api.POST("/jobs", app.submitJobHandler)
		api.GET("/jobs", app.getAllJobsHandler)
		api.GET("/jobs/:job_id", app.getJobStatusHandler)
		api.POST("/jobs/:job_id/cancel", app.cancelJobHandler)
		api.GET("/jobs/:job_id/pages/:page", app.getPageHandler)
		api.GET("/jobs/:job_id/tables", app.getTablesHandler)
	}

	// Start worker pool
	numWorkers := envInt("WORKERS", 1)
	startWorkerPool(app, numWorkers)

	log.Infoln("Server started on port :8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func initLogger() {
	switch logLevel {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	orientation.SetLogLevel(log.GetLevel())
	tables.SetLogLevel(log.GetLevel())
	extraction.SetLogLevel(log.GetLevel())
}

// validateEnvVars ensures all necessary environment variables are set
func validateEnvVars() {
	if extractionProvider == "" {
		log.Fatal("Please set the EXTRACTION_PROVIDER environment variable to 'llm', 'azure' or 'google_docai'.")
	}

	switch extractionProvider {
	case "llm":
		if visionLlmProvider == "" || visionLlmModel == "" {
			log.Fatal("Please set the VISION_LLM_PROVIDER and VISION_LLM_MODEL environment variables.")
		}
		if visionLlmProvider != "openai" && visionLlmProvider != "ollama" && visionLlmProvider != "mistral" {
			log.Fatal("Please set the VISION_LLM_PROVIDER environment variable to 'openai', 'ollama' or 'mistral'.")
		}
		if visionLlmProvider == "openai" && os.Getenv("OPENAI_API_KEY") == "" {
			log.Fatal("Please set the OPENAI_API_KEY environment variable for OpenAI provider.")
		}
	case "azure":
		if azureEndpoint == "" || azureAPIKey == "" {
			log.Fatal("Please set the AZURE_DOCAI_ENDPOINT and AZURE_DOCAI_KEY environment variables.")
		}
	case "google_docai":
		if googleProjectID == "" || googleLocation == "" || googleProcessorID == "" {
			log.Fatal("Please set the GOOGLE_PROJECT_ID, GOOGLE_LOCATION and GOOGLE_PROCESSOR_ID environment variables.")
		}
	default:
		log.Fatalf("Unsupported extraction provider: %s", extractionProvider)
	}
}

// loadTemplates loads the vision prompt template from disk or falls back to
// the built-in default, writing it back so operators can edit it.
func loadTemplates() {
	templateMutex.Lock()
	defer templateMutex.Unlock()

	// Ensure prompts directory exists
	promptsDir := "prompts"
	if err := os.MkdirAll(promptsDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create prompts directory: %v", err)
	}

	visionTemplatePath := filepath.Join(promptsDir, "vision_prompt.tmpl")
	visionTemplateContent, err := os.ReadFile(visionTemplatePath)
	if err != nil {
		log.Errorf("Could not read %s, using default template: %v", visionTemplatePath, err)
		visionTemplateContent = []byte(extraction.DefaultVisionPrompt)
		if err := os.WriteFile(visionTemplatePath, visionTemplateContent, os.ModePerm); err != nil {
			log.Fatalf("Failed to write default vision template to disk: %v", err)
		}
	}
	visionTemplate, err = template.New("vision").Funcs(sprig.FuncMap()).Parse(string(visionTemplateContent))
	if err != nil {
		log.Fatalf("Failed to parse vision template: %v", err)
	}
}

// renderVisionPrompt executes the vision prompt template with the likely
// document language.
func renderVisionPrompt() string {
	templateMutex.RLock()
	defer templateMutex.RUnlock()

	if visionTemplate == nil {
		return extraction.DefaultVisionPrompt
	}

	var rendered bytes.Buffer
	err := visionTemplate.Execute(&rendered, map[string]interface{}{
		"Language": getLikelyLanguage(),
	})
	if err != nil {
		log.Errorf("Failed to render vision prompt, using default: %v", err)
		return extraction.DefaultVisionPrompt
	}
	return rendered.String()
}

// getLikelyLanguage determines the likely language of the document content
func getLikelyLanguage() string {
	likelyLanguage := os.Getenv("DOCUMENT_LANGUAGE")
	if likelyLanguage == "" {
		likelyLanguage = "English"
	}
	return strings.Title(strings.ToLower(likelyLanguage))
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid value for %s: %s", key, value)
	}
	return parsed
}
