package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loomery/loom/internal/domain"
)

// definitionFile mirrors WorkflowDefinition with human-readable durations so
// definitions can be written as YAML.
type definitionFile struct {
	ID      string                `yaml:"id"`
	Name    string                `yaml:"name"`
	Version int                   `yaml:"version"`
	Mode    domain.ExecutionMode  `yaml:"mode"`
	Timeout string                `yaml:"timeout"`
	Nodes   []domain.WorkflowNode `yaml:"nodes"`
	Edges   []domain.WorkflowEdge `yaml:"edges"`
	Retry   *retryFile            `yaml:"retry"`
	Scaling *domain.ScalingHints  `yaml:"scaling"`
}

type retryFile struct {
	Enabled       bool    `yaml:"enabled"`
	MaxAttempts   int     `yaml:"max_attempts"`
	Backoff       string  `yaml:"backoff"`
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// LoadDefinitionFile parses a YAML workflow definition. The result still goes
// through Register for validation; this only handles decoding.
func LoadDefinitionFile(path string) (domain.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkflowDefinition{}, err
	}
	return ParseDefinition(data)
}

func ParseDefinition(data []byte) (domain.WorkflowDefinition, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("parse workflow definition: %w", err)
	}

	def := domain.WorkflowDefinition{
		ID:      file.ID,
		Name:    file.Name,
		Version: file.Version,
		Mode:    file.Mode,
		Nodes:   file.Nodes,
		Edges:   file.Edges,
		Scaling: file.Scaling,
	}

	if file.Timeout != "" {
		timeout, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return domain.WorkflowDefinition{}, fmt.Errorf("parse workflow timeout: %w", err)
		}
		def.Timeout = timeout
	}

	if file.Retry != nil {
		policy := domain.RetryPolicy{
			Enabled:       file.Retry.Enabled,
			MaxAttempts:   file.Retry.MaxAttempts,
			BackoffFactor: file.Retry.BackoffFactor,
		}
		if file.Retry.Backoff != "" {
			backoff, err := time.ParseDuration(file.Retry.Backoff)
			if err != nil {
				return domain.WorkflowDefinition{}, fmt.Errorf("parse retry backoff: %w", err)
			}
			policy.Backoff = backoff
		}
		def.Retry = &policy
	}

	return def, nil
}
