// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"autoapply-backend/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// InputSchemaName is the validator key of an activity's input schema.
func InputSchemaName(taskType string) string {
	return taskType + ".input"
}

// RegisterSchemas compiles every non-empty input schema into v.
func (r *ActivityRegistry) RegisterSchemas(v *validation.Validator) error {
	for _, a := range r.Activities {
		if len(a.InputSchema) == 0 {
			continue
		}
		if err := v.Register(InputSchemaName(a.TaskType), a.InputSchema); err != nil {
			return fmt.Errorf("activity %s: %w", a.ID, err)
		}
	}
	return nil
}

// Check verifies required fields, unique IDs and that every task type in served has an entry.
func (r *ActivityRegistry) Check(served []string) error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool, len(r.Activities))
	for _, a := range r.Activities {
		switch {
		case a.ID == "":
			return fmt.Errorf("activity missing required field: id")
		case ids[a.ID]:
			return fmt.Errorf("duplicate activity id: %s", a.ID)
		case a.TaskType == "":
			return fmt.Errorf("activity %s missing required field: taskType", a.ID)
		case a.Category == "":
			return fmt.Errorf("activity %s missing required field: category", a.ID)
		}
		ids[a.ID] = true
	}

	for _, taskType := range served {
		if _, ok := r.Find(taskType); !ok {
			return fmt.Errorf("task type %s is served but not registered", taskType)
		}
	}
	return nil
}
