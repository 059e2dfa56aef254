package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	TransportHTTP = "http"
	TransportWS   = "ws"
)

const DefaultSystemPrompt = `
You are a highly skilled and knowledgeable assistant, focused on providing accurate and concise technical support.
- Answer coding-related queries with precision, offering code snippets when necessary.
- Maintain a professional tone, and always ensure clarity in your explanations.
- If you encounter an ambiguous query, ask for clarification before proceeding.
- Avoid making assumptions that could lead to incorrect advice.
- Provide context and examples where helpful.
- Do not engage in speculation or provide information beyond your training.
Your goal is to assist users in the most efficient and effective way possible, ensuring they have the information they need to proceed.
`

var defaultModels = map[string]string{
	ProviderGroq:   "llama3-8b-8192",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderOllama: "llama3:latest",
	ProviderGemini: "gemini-2.0-flash-001",
}

type Config struct {
	// Relay server
	Addr         string
	SystemPrompt string

	// Upstream provider
	Provider    string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TopP        float32

	GroqAPIKey   string
	OpenAIAPIKey string
	GeminiAPIKey string
	OllamaHost   string

	// Chat client
	ServerURL string
	Transport string

	// Identity
	GoogleClientID     string
	GoogleClientSecret string

	// Logging
	Dev     bool
	LogPath string
}

// Load reads an optional .env file and then the environment.
// Values already present in the environment win over the .env file.
func Load() *Config {
	godotenv.Load()

	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderGroq))

	return &Config{
		Addr:         getEnvOrDefault("CHAMPS_ADDR", ":8080"),
		SystemPrompt: getEnvOrDefault("CHAMPS_SYSTEM_PROMPT", DefaultSystemPrompt),

		Provider:    provider,
		Model:       getEnvOrDefault("LLM_MODEL", defaultModels[provider]),
		BaseURL:     os.Getenv("LLM_BASE_URL"),
		Temperature: getEnvAsFloatOrDefault("LLM_TEMPERATURE", 1),
		MaxTokens:   getEnvAsIntOrDefault("LLM_MAX_TOKENS", 1024),
		TopP:        getEnvAsFloatOrDefault("LLM_TOP_P", 1),

		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey: getEnvOrDefault("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		OllamaHost:   getEnvOrDefault("OLLAMA_HOST", "localhost:11434"),

		ServerURL: getEnvOrDefault("CHAMPS_SERVER_URL", "http://localhost:8080"),
		Transport: strings.ToLower(getEnvOrDefault("CHAMPS_TRANSPORT", TransportHTTP)),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),

		Dev:     getEnvAsBoolOrDefault("CHAMPS_DEV", false),
		LogPath: os.Getenv("CHAMPS_LOG_PATH"),
	}
}

// SetProvider switches the upstream provider and resets the model to that
// provider's default unless the model was set explicitly.
func (c *Config) SetProvider(provider string) {
	provider = strings.ToLower(provider)
	if c.Model == "" || c.Model == defaultModels[c.Provider] {
		c.Model = defaultModels[provider]
	}
	c.Provider = provider
}

// APIKey returns the credential for the selected provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderGroq:
		return c.GroqAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// Validate checks the relay configuration.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}
	if c.Provider != ProviderOllama && c.APIKey() == "" {
		return fmt.Errorf("an API key is required for provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("LLM_TOP_P must be within (0, 1], got %v", c.TopP)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// ValidateClient checks the chat client configuration.
func (c *Config) ValidateClient() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CHAMPS_SERVER_URL is required")
	}
	if c.Transport != TransportHTTP && c.Transport != TransportWS {
		return fmt.Errorf("unknown CHAMPS_TRANSPORT %q", c.Transport)
	}
	return nil
}

// GoogleSignInEnabled reports whether the Google OAuth client is configured.
func (c *Config) GoogleSignInEnabled() bool {
	return c.GoogleClientID != ""
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float32) float32 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
