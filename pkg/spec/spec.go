// Package spec loads and validates task specification documents. Documents
// are YAML (JSON parses as well), an ordered list of task declarations whose
// order fixes the deterministic scheduling tie-break.
package spec

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/varaku1012/quantumwala/pkg/models"
)

var ErrInvalidSpec = errors.New("invalid task spec")

// Duration wraps time.Duration so spec documents can write "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(ErrInvalidSpec, "bad duration %q: %v", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// TaskSpec is one task declaration in a spec document.
type TaskSpec struct {
	ID           string                   `yaml:"id"`
	Description  string                   `yaml:"description"`
	Kind         string                   `yaml:"kind,omitempty"`
	Command      []string                 `yaml:"command,omitempty"`
	Dependencies []string                 `yaml:"dependencies,omitempty"`
	MaxAttempts  int                      `yaml:"max_attempts,omitempty"`
	Timeout      *Duration                `yaml:"timeout,omitempty"`
	Resources    *models.ResourceEstimate `yaml:"resource_estimate,omitempty"`
}

// Document is a full workflow specification.
type Document struct {
	Name  string     `yaml:"name"`
	Tasks []TaskSpec `yaml:"tasks"`
}

// Load reads and parses a spec document from disk.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, errors.Wrapf(err, "read spec file %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a spec document. Structural dependency checks
// (unknown ids, duplicates, cycles) belong to graph construction; Parse only
// enforces the document schema.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, errors.Wrapf(ErrInvalidSpec, "parse: %v", err)
	}
	if len(doc.Tasks) == 0 {
		return Document{}, errors.Wrap(ErrInvalidSpec, "no tasks declared")
	}
	for i, t := range doc.Tasks {
		if t.ID == "" {
			return Document{}, errors.Wrapf(ErrInvalidSpec, "task at index %d has no id", i)
		}
		if t.Description == "" {
			return Document{}, errors.Wrapf(ErrInvalidSpec, "task %q has no description", t.ID)
		}
		if t.Kind == "command" && len(t.Command) == 0 {
			return Document{}, errors.Wrapf(ErrInvalidSpec, "task %q is a command task but declares no command", t.ID)
		}
		if t.Resources != nil && (t.Resources.CPU <= 0 || t.Resources.Memory <= 0) {
			return Document{}, errors.Wrapf(ErrInvalidSpec, "task %q declares a non-positive resource estimate", t.ID)
		}
	}
	if doc.Name == "" {
		doc.Name = "workflow"
	}
	return doc, nil
}

// ApplyDefaultMaxAttempts sets the retry ceiling for every task that declares
// none. Per-task max_attempts in the document always wins.
func (d *Document) ApplyDefaultMaxAttempts(n int) {
	if n <= 0 {
		return
	}
	for i := range d.Tasks {
		if d.Tasks[i].MaxAttempts <= 0 {
			d.Tasks[i].MaxAttempts = n
		}
	}
}

// ModelTasks converts the document into model tasks in declaration order,
// filling defaults: kind "noop" (or "command" when a command is declared),
// max_attempts 3, resource estimate {cpu:1, memory:1}.
func (d Document) ModelTasks() []models.Task {
	out := make([]models.Task, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		kind := t.Kind
		if kind == "" {
			if len(t.Command) > 0 {
				kind = "command"
			} else {
				kind = "noop"
			}
		}
		maxAttempts := t.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = models.DefaultMaxAttempts
		}
		estimate := models.DefaultResourceEstimate
		if t.Resources != nil {
			estimate = *t.Resources
		}
		var timeout *time.Duration
		if t.Timeout != nil {
			d := time.Duration(*t.Timeout)
			timeout = &d
		}
		out = append(out, models.Task{
			ID:           t.ID,
			Description:  t.Description,
			Kind:         kind,
			Command:      t.Command,
			Dependencies: t.Dependencies,
			Status:       models.PendingTaskStatus,
			MaxAttempts:  maxAttempts,
			Timeout:      timeout,
			Estimate:     estimate,
		})
	}
	return out
}
