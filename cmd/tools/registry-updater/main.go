// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"autoapply-backend/internal/common/validation"
	"autoapply-backend/pkg/registry"

	aas "autoapply-backend/internal/workers/application/advance-application-status"
	aob "autoapply-backend/internal/workers/application/apply-on-behalf"
	san "autoapply-backend/internal/workers/application/send-application-notification"
	rms "autoapply-backend/internal/workers/jobs/refresh-match-scores"
	tss "autoapply-backend/internal/workers/scraping/trigger-scraping-session"
)

// servedTaskTypes are the task types the worker manager opens workers for.
var servedTaskTypes = []string{tss.TaskType, aob.TaskType, aas.TaskType, san.TaskType, rms.TaskType}

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		path := fs.String("path", "configs/activity-registry.json", "Path to registry file")
		fs.Parse(os.Args[2:])
		err = validateRegistry(*path)

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		path := fs.String("path", "configs/activity-registry.json", "Path to registry file")
		fs.Parse(os.Args[2:])
		err = listActivities(*path)

	case "update":
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		path := fs.String("path", "configs/activity-registry.json", "Path to registry file")
		id := fs.String("id", "", "Activity ID to update")
		field := fs.String("field", "", "Field to update (status, version, description, timeout, retries)")
		value := fs.String("value", "", "New value for the field")
		fs.Parse(os.Args[2:])
		if *id == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			fs.Usage()
			os.Exit(1)
		}
		err = updateActivity(*path, *id, *field, *value)

	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// validateRegistry checks the registry structure and compiles every input schema.
func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Check(servedTaskTypes); err != nil {
		return err
	}
	if err := reg.RegisterSchemas(validation.NewValidator()); err != nil {
		return err
	}
	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

func listActivities(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, a := range reg.Activities {
		fmt.Printf("%-32s %-14s %-12s timeout=%s retries=%d\n", a.TaskType, a.Category, a.ImplementationStatus, a.Timeout, a.Retries)
	}
	return nil
}

func updateActivity(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	var target *registry.Activity
	for i := range reg.Activities {
		if reg.Activities[i].ID == id {
			target = &reg.Activities[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "status":
		target.ImplementationStatus = value
	case "version":
		target.Version = value
	case "description":
		target.Description = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		target.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		target.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().Format("2006-01-02")
	if err := saveRegistry(reg, path); err != nil {
		return err
	}
	fmt.Printf("Updated activity %s, field %s to %s\n", id, field, value)
	return nil
}

func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  validate  Check the registry and compile every input schema
  list      Print the registered activities
  update    Update an existing activity's field
  help      Show this help message

Examples:
  registry-updater validate -path configs/activity-registry.json
  registry-updater update -id apply-on-behalf -field retries -value 5`)
}
