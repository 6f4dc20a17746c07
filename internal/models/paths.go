// Package models resolves the on-disk location of the corner detection models.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model filenames.
const (
	CornerHeatmap     = "card_corners_heatmap.onnx"
	CornerHeatmapLite = "card_corners_heatmap_lite.onnx"
)

// TypeCorners is the subdirectory holding corner models.
const TypeCorners = "corners"

// DefaultModelsDir is used relative to the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "CARDRECTIFY_MODELS_DIR"

// ModelInfo describes a known model.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	InputSize   int    `json:"input_size"`
	Description string `json:"description"`
}

var known = []ModelInfo{
	{
		Name:        "corners",
		Type:        TypeCorners,
		Filename:    CornerHeatmap,
		InputSize:   384,
		Description: "Four-channel corner heatmap network for ID-1 cards",
	},
	{
		Name:        "corners-lite",
		Type:        TypeCorners,
		Filename:    CornerHeatmapLite,
		InputSize:   256,
		Description: "Smaller corner heatmap network for low-power devices",
	},
}

// ListAvailableModels returns the known models.
func ListAvailableModels() []ModelInfo {
	return append([]ModelInfo(nil), known...)
}

// Lookup finds a model by name or filename.
func Lookup(name string) (ModelInfo, bool) {
	for _, m := range known {
		if m.Name == name || m.Filename == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}

// GetModelsDir returns the models directory.
// Priority: explicit argument, environment variable, project root + "models".
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath returns the path of filename, preferring the organised
// <dir>/<type>/<file> layout and falling back to <dir>/<file>.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(base, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(base, filename)
}

// GetCornerModelPath resolves the corner heatmap model. An explicit path wins
// over the models directory.
func GetCornerModelPath(modelsDir, explicit string, lite bool) string {
	if explicit != "" {
		return explicit
	}
	name := CornerHeatmap
	if lite {
		name = CornerHeatmapLite
	}
	return ResolveModelPath(modelsDir, TypeCorners, name)
}

// ValidateModelExists reports a descriptive error when the model is missing.
func ValidateModelExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model not found at %s (set %s or --models-dir): %w", path, EnvModelsDir, err)
	}
	return nil
}
