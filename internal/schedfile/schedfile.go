// Package schedfile reads schedules from YAML files: a single rule for
// recurctl, or a list of task assignments used to seed recurd at start.
package schedfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/doughall/recurd/internal/recurrence"
)

// ErrDuplicateTask is returned when a seed file assigns a task twice.
var ErrDuplicateTask = errors.New("duplicate task id")

// Entry is one assignment in a seed file.
type Entry struct {
	TaskID   string              `yaml:"task_id"`
	Schedule recurrence.Document `yaml:"schedule"`
}

// Assignment is a decoded seed entry.
type Assignment struct {
	TaskID   string
	Schedule recurrence.Schedule
}

// LoadRule reads a single schedule document.
func LoadRule(path string) (recurrence.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recurrence.Schedule{}, fmt.Errorf("read rule %s: %w", path, err)
	}
	var doc recurrence.Document
	if err := decodeStrict(data, &doc); err != nil {
		return recurrence.Schedule{}, fmt.Errorf("parse rule %s: %w", path, err)
	}
	sched, err := doc.Schedule()
	if err != nil {
		return recurrence.Schedule{}, fmt.Errorf("rule %s: %w", path, err)
	}
	return sched, nil
}

// LoadSeed reads a list of task assignments. Every entry is decoded before
// any is returned, so a bad file seeds nothing.
func LoadSeed(path string) ([]Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules %s: %w", path, err)
	}
	var entries []Entry
	if err := decodeStrict(data, &entries); err != nil {
		return nil, fmt.Errorf("parse schedules %s: %w", path, err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]Assignment, 0, len(entries))
	for i, e := range entries {
		if e.TaskID == "" {
			return nil, fmt.Errorf("schedules %s: entry %d has no task_id", path, i)
		}
		if seen[e.TaskID] {
			return nil, fmt.Errorf("schedules %s: %w: %s", path, ErrDuplicateTask, e.TaskID)
		}
		seen[e.TaskID] = true

		sched, err := e.Schedule.Schedule()
		if err != nil {
			return nil, fmt.Errorf("schedules %s: task %s: %w", path, e.TaskID, err)
		}
		out = append(out, Assignment{TaskID: e.TaskID, Schedule: sched})
	}
	return out, nil
}

// decodeStrict rejects unknown keys so typos in rule files fail loudly.
func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
