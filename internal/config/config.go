// Package config loads the yaml configuration tree with environment
// overrides. A missing file yields pure defaults; STORYFORGE_* variables win
// over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Server holds the HTTP front-end settings.
type Server struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// LLM holds the completion backend settings.
type LLM struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

// Embedding holds the embedding backend settings.
type Embedding struct {
	Provider       string `yaml:"provider"`
	GenAIModel     string `yaml:"genai_model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
}

// Storage holds every durable path.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	OutputsDir string `yaml:"outputs_dir"`
	GoldenDir  string `yaml:"golden_dir"`
}

// Pipeline holds the generation thresholds.
type Pipeline struct {
	TopK                     int     `yaml:"top_k"`
	ChunkSize                int     `yaml:"chunk_size"`
	ChunkOverlap             int     `yaml:"chunk_overlap"`
	MinQualityScore          float64 `yaml:"min_quality_score"`
	MinValidationScore       float64 `yaml:"min_validation_score"`
	MinFunctionalityCoverage float64 `yaml:"min_functionality_coverage"`
	HardConstraintsMode      string  `yaml:"hard_constraints_mode"`
}

// Config is the root configuration tree.
type Config struct {
	Server    Server    `yaml:"server"`
	LLM       LLM       `yaml:"llm"`
	Embedding Embedding `yaml:"embedding"`
	Storage   Storage   `yaml:"storage"`
	Pipeline  Pipeline  `yaml:"pipeline"`
}

// Default returns the shipped settings.
func Default() Config {
	return Config{
		Server: Server{Port: 8080},
		LLM:    LLM{Model: "gemini-2.5-flash", Temperature: 0.2},
		Embedding: Embedding{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
		},
		Storage: Storage{
			DataDir:    "data",
			OutputsDir: "outputs",
			GoldenDir:  "golden",
		},
		Pipeline: Pipeline{
			TopK:                     12,
			ChunkSize:                600,
			ChunkOverlap:             120,
			MinQualityScore:          0.55,
			MinValidationScore:       75,
			MinFunctionalityCoverage: 0.70,
			HardConstraintsMode:      "warn",
		},
	}
}

// Load reads the yaml file at path (when it exists), then applies .env and
// STORYFORGE_* environment overrides.
func Load(path string) (Config, error) {
	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.LLM.APIKey, "STORYFORGE_API_KEY", "GEMINI_API_KEY")
	setString(&cfg.LLM.Model, "STORYFORGE_MODEL")
	setString(&cfg.Embedding.Provider, "STORYFORGE_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.OllamaEndpoint, "STORYFORGE_OLLAMA_ENDPOINT")
	setString(&cfg.Server.APIKey, "STORYFORGE_SERVER_API_KEY")
	setString(&cfg.Storage.DataDir, "STORYFORGE_DATA_DIR")
	setString(&cfg.Storage.OutputsDir, "STORYFORGE_OUTPUTS_DIR")
	setString(&cfg.Storage.GoldenDir, "STORYFORGE_GOLDEN_DIR")
	setString(&cfg.Pipeline.HardConstraintsMode, "STORYFORGE_CONSTRAINTS_MODE")
	setInt(&cfg.Server.Port, "STORYFORGE_PORT")
	setInt(&cfg.Pipeline.TopK, "STORYFORGE_TOP_K")
}

func setString(target *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*target = v
			return
		}
	}
}

func setInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// ChunkDBPath is the sqlite chunk store location under the data dir.
func (c Config) ChunkDBPath() string { return filepath.Join(c.Storage.DataDir, "chunks.db") }

// RunsPath is the run registry file.
func (c Config) RunsPath() string { return filepath.Join(c.Storage.DataDir, "runs.json") }

// LearningPath is the learning profile file.
func (c Config) LearningPath() string { return filepath.Join(c.Storage.DataDir, "learning.json") }

// FeedbackPath is the feedback history file.
func (c Config) FeedbackPath() string { return filepath.Join(c.Storage.DataDir, "feedback.json") }
