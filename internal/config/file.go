package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileOverlay is the subset of settings a batch job may override from a YAML file.
// Zero values leave the environment-derived setting untouched.
type FileOverlay struct {
	EmbeddingsPath string `yaml:"embeddings_path"`
	DBPath         string `yaml:"db_path"`
	ImageDir       string `yaml:"image_dir"`
	Collection     string `yaml:"collection"`

	Build struct {
		Workers      int           `yaml:"workers"`
		FetchRetries int           `yaml:"fetch_retries"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"build"`

	Load struct {
		BatchSize int `yaml:"batch_size"`
	} `yaml:"load"`

	Eval struct {
		SampleSize int   `yaml:"sample_size"`
		Seed       int64 `yaml:"seed"`
	} `yaml:"eval"`
}

// ApplyFile reads a YAML overlay from path and applies it on top of cfg.
// A missing file is not an error.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay FileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	overlay.apply(cfg)
	return cfg.Validate()
}

func (o *FileOverlay) apply(cfg *Config) {
	setString(&cfg.EmbeddingsPath, o.EmbeddingsPath)
	setString(&cfg.DBPath, o.DBPath)
	setString(&cfg.ImageDir, o.ImageDir)
	setString(&cfg.QdrantCollection, o.Collection)
	setInt(&cfg.BuildWorkers, o.Build.Workers)
	setInt(&cfg.ImageFetchRetries, o.Build.FetchRetries)
	setInt(&cfg.UpsertBatchSize, o.Load.BatchSize)
	setInt(&cfg.EvalSampleSize, o.Eval.SampleSize)
	if o.Build.FetchTimeout > 0 {
		cfg.ImageFetchTimeout = o.Build.FetchTimeout
	}
	if o.Eval.Seed != 0 {
		cfg.EvalSeed = o.Eval.Seed
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
