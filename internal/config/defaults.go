package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data/vector_storage"
	}
	if cfg.Storage.Compression == "" {
		cfg.Storage.Compression = "none"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Ollama.URL == "" {
		cfg.Embedding.Ollama.URL = "http://localhost:11434"
	}
	if cfg.Embedding.Ollama.Model == "" {
		cfg.Embedding.Ollama.Model = "all-minilm"
	}
	if cfg.Embedding.Ollama.Timeout == 0 {
		cfg.Embedding.Ollama.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Ollama.RequestsPerSecond == 0 {
		cfg.Embedding.Ollama.RequestsPerSecond = 10
	}
	if cfg.Embedding.Ollama.Concurrency == 0 {
		cfg.Embedding.Ollama.Concurrency = 4
	}
	if cfg.Embedding.Ollama.BatchSize == 0 {
		cfg.Embedding.Ollama.BatchSize = 32
	}
	if cfg.Query.DefaultTopK == 0 {
		cfg.Query.DefaultTopK = 5
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".json", ".txt", ".md", ".pdf", ".xlsx"}
	}
}
