package config

import (
	"os"

	"focusflow-go/internal/types"
)

// Config collects every env-driven setting the service reads.
type Config struct {
	Port            string
	DataDir         string
	JobsPath        string
	PromptPath      string
	TitlePromptPath string

	AssemblyAIKey  string
	AssemblyAIBase string

	OpenAIKey   string
	OpenAIBase  string
	OpenAIModel string

	PlaudAPIBase string
}

func Load() Config {
	return Config{
		Port:            getEnv("PORT", "8080"),
		DataDir:         getEnv("DATA_DIR", "data/files"),
		JobsPath:        getEnv("JOBS_PATH", "data/jobs.json"),
		PromptPath:      getEnv("PROMPT_PATH", "prompts/meeting_summary.md"),
		TitlePromptPath: getEnv("TITLE_PROMPT_PATH", "prompts/title_generator.md"),
		AssemblyAIKey:   os.Getenv("ASSEMBLYAI_API_KEY"),
		AssemblyAIBase:  getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com/v2"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		PlaudAPIBase:    getEnv("PLAUD_API_BASE", "https://api.plaud.ai"),
	}
}

// TranscriptionEnabled reports whether the transcription credential is set.
func (c Config) TranscriptionEnabled() bool {
	return c.AssemblyAIKey != ""
}

// SummarizationEnabled reports whether the LLM endpoint is configured.
func (c Config) SummarizationEnabled() bool {
	return c.OpenAIKey != "" && c.OpenAIBase != ""
}

// Capabilities is the read-only view exposed to clients.
func (c Config) Capabilities() types.Capabilities {
	return types.Capabilities{
		TranscriptionEnabled: c.TranscriptionEnabled(),
		SummarizationEnabled: c.SummarizationEnabled(),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
