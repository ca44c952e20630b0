package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultVisionPrompt asks the model for the structured payload ParsePayload
// understands. Confidences are free-form here; quantization happens on parse.
const DefaultVisionPrompt = `You are a document extraction engine. Analyze the page image and respond with a single JSON object, no prose, matching this schema:
{
  "documentType": {"label": string, "confidence": number, "reasons": [string]},
  "fields": [{"id": string, "name": string, "value": string, "confidence": number, "sourceType": string, "bbox": {"x": number, "y": number, "width": number, "height": number}}],
  "tables": [{"id": string, "caption": string, "confidence": number, "columns": [{"key": string, "header": string, "type": string, "confidence": number}], "rows": [[{"value": string, "confidence": number}]], "bbox": {"x": number, "y": number, "width": number, "height": number}}]
}
Rules:
- Report every visible table, including tables that continue from a previous page and therefore have no header row; in that case emit an empty "columns" array.
- Preserve the reading order of rows exactly as printed.
- Bounding boxes use page-relative coordinates in the range 0 to 1. Omit a bbox when you cannot locate the element.
- Confidence is your own estimate between 0 and 1.`

// LLMProvider implements extraction using LLM vision models
type LLMProvider struct {
	provider string
	model    string
	llm      llms.Model
	prompt   string
}

func newLLMProvider(config Config) (*LLMProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"provider": config.VisionLLMProvider,
		"model":    config.VisionLLMModel,
	})
	logger.Info("Creating new LLM extraction provider")

	var model llms.Model
	var err error

	switch strings.ToLower(config.VisionLLMProvider) {
	case "openai":
		logger.Debug("Initializing OpenAI vision model")
		model, err = createOpenAIClient(config)
	case "ollama":
		logger.Debug("Initializing Ollama vision model")
		model, err = createOllamaClient(config)
	case "mistral":
		logger.Debug("Initializing Mistral vision model")
		model, err = createMistralClient(config)
	default:
		return nil, fmt.Errorf("unsupported vision LLM provider: %s", config.VisionLLMProvider)
	}

	if err != nil {
		logger.WithError(err).Error("Failed to create vision LLM client")
		return nil, fmt.Errorf("error creating vision LLM client: %w", err)
	}

	prompt := config.VisionLLMPrompt
	if prompt == "" {
		prompt = DefaultVisionPrompt
	}

	if config.RateLimit.RequestsPerMinute > 0 || config.RateLimit.MaxRetries > 0 {
		model = NewRateLimitedModel(model, config.RateLimit)
	}

	logger.Info("Successfully initialized LLM extraction provider")
	return &LLMProvider{
		provider: config.VisionLLMProvider,
		model:    config.VisionLLMModel,
		llm:      model,
		prompt:   prompt,
	}, nil
}

func (p *LLMProvider) ExtractPage(ctx context.Context, imageContent []byte, pageNumber int) (*PageResult, error) {
	logger := log.WithFields(logrus.Fields{
		"provider": p.provider,
		"model":    p.model,
		"page":     pageNumber,
	})
	logger.Debug("Starting LLM extraction")

	img, _, err := image.Decode(bytes.NewReader(imageContent))
	if err != nil {
		logger.WithError(err).Error("Failed to decode image")
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	bounds := img.Bounds()
	logger.WithFields(logrus.Fields{
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
	}).Debug("Image dimensions")

	mime := mimetype.Detect(imageContent)

	var imagePart llms.ContentPart
	providerName := strings.ToLower(p.provider)
	if providerName == "openai" || providerName == "mistral" {
		logger.Debug("Using data URL image format")
		imagePart = llms.ImageURLPart("data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(imageContent))
	} else {
		logger.Debug("Using binary image format")
		imagePart = llms.BinaryPart(mime.String(), imageContent)
	}

	parts := []llms.ContentPart{
		imagePart,
		llms.TextPart(p.prompt),
	}

	logger.Debug("Sending request to vision model")
	completion, err := p.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Parts: parts,
			Role:  llms.ChatMessageTypeHuman,
		},
	})
	if err != nil {
		logger.WithError(err).Error("Failed to get response from vision model")
		return nil, fmt.Errorf("error getting response from LLM: %w", err)
	}

	content := completion.Choices[0].Content
	raw := ExtractJSON(content)
	if raw == "" {
		logger.WithField("content_length", len(content)).Error("Vision model response contained no JSON payload")
		return nil, fmt.Errorf("no JSON payload in vision model response")
	}

	result, err := ParsePayload(pageNumber, []byte(raw))
	if err != nil {
		return nil, err
	}
	result.Metadata = map[string]string{
		"provider": p.provider,
		"model":    p.model,
	}
	logger.WithFields(logrus.Fields{
		"fields": len(result.Fields),
		"tables": len(result.Tables),
	}).Info("Successfully extracted page")
	return result, nil
}

// createOpenAIClient creates a new OpenAI vision model client
func createOpenAIClient(config Config) (llms.Model, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	return openai.New(
		openai.WithModel(config.VisionLLMModel),
		openai.WithToken(apiKey),
	)
}

// createOllamaClient creates a new Ollama vision model client
func createOllamaClient(config Config) (llms.Model, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return ollama.New(
		ollama.WithModel(config.VisionLLMModel),
		ollama.WithServerURL(host),
	)
}

// createMistralClient creates a new Mistral vision model client
func createMistralClient(config Config) (llms.Model, error) {
	apiKey := os.Getenv("MISTRAL_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("Mistral API key is not set")
	}
	return mistral.New(
		mistral.WithModel(config.VisionLLMModel),
		mistral.WithAPIKey(apiKey),
	)
}
