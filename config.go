package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Configuration variables
var (
	// Provider API keys. A native backend is used only when its key is set;
	// everything else falls back to OpenRouter.
	OpenAIAPIKey     string
	XAIAPIKey        string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	OpenRouterAPIKey string

	// Provider endpoints (overridable for tests)
	OpenAIBaseURL     = "https://api.openai.com/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
	AnthropicBaseURL  = "https://api.anthropic.com/v1"
	GoogleBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	// CouncilModels is the default council when no personas are selected
	CouncilModels = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}

	// ChairmanModel is the model used for final synthesis
	ChairmanModel = "google/gemini-3-pro-preview"

	// TitleModel is the fast model used for conversation titles
	TitleModel = "google/gemini-2.5-flash"

	// DefaultMembers is the resolved default council, built from
	// CouncilModels or from council.yaml when present
	DefaultMembers []CouncilMember

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// PersonasFile is the JSON file backing the persona store
	PersonasFile = "data/personas.json"

	// Timeout constants
	ModelQueryTimeout = 120 * time.Second
	TitleGenTimeout   = 30 * time.Second
	ModelListTimeout  = 30 * time.Second
	FetchURLTimeout   = 30 * time.Second

	// ModelsCacheTTL is the time-to-live for the provider model-list cache
	ModelsCacheTTL = 5 * time.Minute

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20
)

// councilFile mirrors the optional council.yaml layout.
type councilFile struct {
	Council []struct {
		Name        string `yaml:"name"`
		Model       string `yaml:"model"`
		Prompt      string `yaml:"prompt"`
		Description string `yaml:"description"`
	} `yaml:"council"`
	Chairman   string `yaml:"chairman"`
	TitleModel string `yaml:"title_model"`
}

// LoadConfig loads configuration from environment variables and the
// optional council.yaml file.
func LoadConfig() {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Printf("Loaded .env from: %s", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Printf("Warning: .env file not found in any expected location")
	}

	OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	XAIAPIKey = os.Getenv("XAI_API_KEY")
	AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	if GoogleAPIKey == "" {
		GoogleAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")

	if OpenRouterAPIKey == "" && OpenAIAPIKey == "" && AnthropicAPIKey == "" &&
		GoogleAPIKey == "" && XAIAPIKey == "" {
		log.Fatal("No provider API key configured; set OPENROUTER_API_KEY or a native provider key")
	}

	// Load CORS origins from environment if provided
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = parseCORSOrigins(corsOrigins)
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		DataDir = filepath.Join(dir, "conversations")
		PersonasFile = filepath.Join(dir, "personas.json")
	}

	configPath := os.Getenv("COUNCIL_CONFIG")
	if configPath == "" {
		configPath = "council.yaml"
	}
	if err := loadCouncilFile(configPath); err != nil {
		log.Printf("Council config %s not loaded: %v (using built-in defaults)", configPath, err)
	}

	DefaultMembers = defaultCouncilMembers()

	log.Println("Configuration loaded successfully")
}

// parseCORSOrigins splits a comma-separated origin list. Commas rather
// than the platform list separator, since origins carry colons themselves.
func parseCORSOrigins(value string) []string {
	origins := []string{}
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// loadCouncilFile overrides the default council and chairman from a YAML
// file. A missing file leaves the built-in defaults in place.
func loadCouncilFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cf councilFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse council config: %w", err)
	}

	// Validate the whole file before touching any globals, so a broken
	// entry leaves the built-in defaults intact.
	if len(cf.Council) > 0 {
		models := make([]string, 0, len(cf.Council))
		members := make([]CouncilMember, 0, len(cf.Council))
		for i, entry := range cf.Council {
			if entry.Model == "" {
				return fmt.Errorf("council entry %d has no model", i)
			}
			models = append(models, entry.Model)
			name := entry.Name
			if name == "" {
				name = entry.Model
			}
			members = append(members, CouncilMember{
				ID:          fmt.Sprintf("council-%d", i),
				Name:        name,
				Model:       entry.Model,
				Prompt:      entry.Prompt,
				Description: entry.Description,
			})
		}
		CouncilModels = models
		DefaultMembers = members
	}
	if cf.Chairman != "" {
		ChairmanModel = cf.Chairman
	}
	if cf.TitleModel != "" {
		TitleModel = cf.TitleModel
	}

	log.Printf("Loaded council config from %s (%d members)", path, len(cf.Council))
	return nil
}

// defaultCouncilMembers builds the default council from CouncilModels,
// unless council.yaml already provided full member records.
func defaultCouncilMembers() []CouncilMember {
	if len(DefaultMembers) > 0 {
		return DefaultMembers
	}
	members := make([]CouncilMember, 0, len(CouncilModels))
	for i, model := range CouncilModels {
		members = append(members, CouncilMember{
			ID:    fmt.Sprintf("council-%d", i),
			Name:  model,
			Model: model,
		})
	}
	return members
}
