package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/dukex/stride/pkg/registry"
	"github.com/go-playground/validator/v10"
)

// WorkflowFile is a workflow definition read from disk.
type WorkflowFile struct {
	Path     string
	Workflow *models.Workflow
	Err      error
}

// LoadWorkflowFiles decodes every *.json file in dir, ordered by path. Decode
// failures are reported per file.
func LoadWorkflowFiles(dir string) ([]WorkflowFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows in %s: %w", dir, err)
	}

	sort.Strings(paths)

	files := make([]WorkflowFile, 0, len(paths))

	for _, path := range paths {
		file := WorkflowFile{Path: path}

		data, err := os.ReadFile(path)
		if err == nil {
			var workflow models.Workflow
			if err = json.Unmarshal(data, &workflow); err == nil {
				file.Workflow = &workflow
			}
		}

		file.Err = err
		files = append(files, file)
	}

	return files, nil
}

// CheckWorkflowFiles validates decoded files and their action types in place
// and returns the number of invalid files.
func CheckWorkflowFiles(files []WorkflowFile, v *validator.Validate, reg *registry.Registry) int {
	invalid := 0

	for i := range files {
		if files[i].Err == nil {
			files[i].Err = errors.Join(
				models.Validate(v, files[i].Workflow),
				reg.CheckWorkflow(files[i].Workflow),
			)
		}

		if files[i].Err != nil {
			invalid++
		}
	}

	return invalid
}

// ImportWorkflows validates the files in dir and saves the valid ones to store.
func ImportWorkflows(
	ctx context.Context,
	dir string,
	store persistence.WorkflowStore,
	v *validator.Validate,
	reg *registry.Registry,
) ([]WorkflowFile, error) {
	files, err := LoadWorkflowFiles(dir)
	if err != nil {
		return nil, err
	}

	CheckWorkflowFiles(files, v, reg)

	for i := range files {
		if files[i].Err != nil {
			continue
		}

		if err := store.SaveWorkflow(ctx, files[i].Workflow); err != nil {
			files[i].Err = err
		}
	}

	return files, nil
}
