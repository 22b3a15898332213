package ml

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ModelInfo contains metadata about an embedding model
type ModelInfo struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Dimensions int       `json:"dimensions"` // 0 until the first probe
	ProbedAt   time.Time `json:"probed_at,omitempty"`
}

// ModelRegistry tracks the embedding models the engine talks to. Versions
// partition the embedding memo so a model upgrade never reuses stale vectors.
type ModelRegistry struct {
	models map[string]*ModelInfo
	mutex  sync.RWMutex
	logger *logrus.Logger
}

func NewModelRegistry(logger *logrus.Logger) *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelInfo),
		logger: logger,
	}
}

// RegisterModel registers a model, replacing any previous entry of the same name.
func (mr *ModelRegistry) RegisterModel(info ModelInfo) error {
	if info.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if info.Dimensions < 0 {
		return fmt.Errorf("invalid dimensions for model %s: %d", info.Name, info.Dimensions)
	}
	if info.Version == "" {
		info.Version = "v1"
	}

	mr.mutex.Lock()
	mr.models[info.Name] = &info
	mr.mutex.Unlock()

	mr.logger.WithFields(logrus.Fields{
		"model_name": info.Name,
		"version":    info.Version,
		"dimensions": info.Dimensions,
	}).Info("Model registered successfully")

	return nil
}

// GetModelInfo returns a copy of the model's metadata.
func (mr *ModelRegistry) GetModelInfo(name string) (ModelInfo, error) {
	mr.mutex.RLock()
	defer mr.mutex.RUnlock()

	info, exists := mr.models[name]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", name)
	}
	return *info, nil
}

// RecordDimensions stores the vector size observed from the live service.
func (mr *ModelRegistry) RecordDimensions(name string, dimensions int) error {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()

	info, exists := mr.models[name]
	if !exists {
		return fmt.Errorf("model not found: %s", name)
	}
	if info.Dimensions != 0 && info.Dimensions != dimensions {
		return fmt.Errorf("model %s returned %d dimensions, expected %d", name, dimensions, info.Dimensions)
	}
	info.Dimensions = dimensions
	info.ProbedAt = time.Now()
	return nil
}

func (mr *ModelRegistry) ListModels() []ModelInfo {
	mr.mutex.RLock()
	defer mr.mutex.RUnlock()

	models := make([]ModelInfo, 0, len(mr.models))
	for _, info := range mr.models {
		models = append(models, *info)
	}
	return models
}
