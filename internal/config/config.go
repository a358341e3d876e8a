package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Store      Store      `yaml:"store"`
	Sources    Sources    `yaml:"sources"`
	Embedding  Embedding  `yaml:"embedding"`
	Index      Index      `yaml:"index"`
	Clustering Clustering `yaml:"clustering"`
	Output     Output     `yaml:"output"`
	Logging    Logging    `yaml:"logging"`
}

// Store selects where articles are read from and results written to.
type Store struct {
	Driver         string `yaml:"driver"` // "sqlite" or "postgres"
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type Embedding struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	OpenAIURL   string `yaml:"openai_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

type Index struct {
	TitleWeight         int     `yaml:"title_weight"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	GraphNeighbors      int     `yaml:"graph_neighbors"`
	ExactSearchLimit    int     `yaml:"exact_search_limit"`
	MaxLists            int     `yaml:"max_lists"`
	NProbe              int     `yaml:"nprobe"`
	SemanticWeight      float64 `yaml:"semantic_weight"`
	LinkCount           int     `yaml:"link_count"`
	LinkMethod          string  `yaml:"link_method"`
}

type Clustering struct {
	Method        string  `yaml:"method"` // feature space: "semantic" or "tfidf"
	NClusters     int     `yaml:"n_clusters"`
	Eps           float64 `yaml:"eps"`
	MinSamples    int     `yaml:"min_samples"`
	Seed          int64   `yaml:"seed"`
	WardThreshold float64 `yaml:"ward_threshold"` // > 0 selects Ward instead of k-means/DBSCAN
	PrioritySlots int     `yaml:"priority_slots"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for newslinker.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newslinker")
}

// DataDir returns the XDG data directory for newslinker.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newslinker")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newslinker/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newslinker init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv reads KEY=value pairs from .env in the working directory and in
// the config directory. Variables already set in the environment win.
func LoadEnv() error {
	for _, path := range []string{".env", filepath.Join(ConfigDir(), ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{
			Driver:         "sqlite",
			PostgresDSNEnv: "NEWSLINKER_POSTGRES_DSN",
		},
		Embedding: Embedding{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			BatchSize:   64,
			Concurrency: 4,
		},
		Index: Index{
			TitleWeight:         2,
			SimilarityThreshold: 0.3,
			GraphNeighbors:      5,
			ExactSearchLimit:    10000,
			MaxLists:            100,
			NProbe:              1,
			SemanticWeight:      0.7,
			LinkCount:           3,
			LinkMethod:          "semantic",
		},
		Clustering: Clustering{
			Method:        "semantic",
			Eps:           0.5,
			MinSamples:    2,
			Seed:          42,
			PrioritySlots: 20,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if w := c.Index.SemanticWeight; !(w >= 0 && w <= 1) {
		return fmt.Errorf("index.semantic_weight must be within [0, 1], got %v", w)
	}
	if c.Index.LinkCount < 0 {
		return fmt.Errorf("index.link_count must not be negative, got %d", c.Index.LinkCount)
	}
	if c.Clustering.NClusters < 0 {
		return fmt.Errorf("clustering.n_clusters must not be negative, got %d", c.Clustering.NClusters)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath is the SQLite article store inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "newslinker.db")
}

// SnapshotPath is where the index snapshot is saved. The ANN artifact sits
// next to it.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.GetDataDir(), "index.snap")
}

// PostgresDSN reads the connection string from the configured variable.
func (c *Config) PostgresDSN() (string, error) {
	dsn := os.Getenv(c.Store.PostgresDSNEnv)
	if dsn == "" {
		return "", fmt.Errorf("store.driver is postgres but %s is not set", c.Store.PostgresDSNEnv)
	}
	return dsn, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
