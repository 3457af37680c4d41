// Package file provides file-based persistence implementation for workflows and users.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	usersDir     = "users"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every document is one JSON file under <root>/workflows or <root>/users.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	userRepo     *UserRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot),
		userRepo:     NewUserRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return fp.workflowRepo.GetAll(ctx)
}

func (fp *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return fp.workflowRepo.GetByID(ctx, id)
}

func (fp *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return fp.workflowRepo.Save(ctx, workflow)
}

func (fp *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return fp.workflowRepo.Delete(ctx, id)
}

func (fp *Persistence) Users(ctx context.Context) ([]*models.UserContext, error) {
	return fp.userRepo.GetAll(ctx)
}

func (fp *Persistence) UserByID(ctx context.Context, id string) (*models.UserContext, error) {
	return fp.userRepo.GetByID(ctx, id)
}

func (fp *Persistence) SaveUser(ctx context.Context, user *models.UserContext) error {
	return fp.userRepo.Save(ctx, user)
}

// documents reads and writes one kind of JSON document in a directory.
type documents struct {
	mu  sync.RWMutex
	dir string
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (d *documents) path(id string) string {
	return filepath.Join(d.dir, id+".json")
}

// read decodes the document id into v and reports fs.ErrNotExist when it is absent.
func (d *documents) read(id string, v any) error {
	if !validID(id) {
		return fs.ErrNotExist
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	body, err := os.ReadFile(d.path(id))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return nil
}

// write stores v as the document id, replacing it atomically.
func (d *documents) write(id string, v any) error {
	if !validID(id) {
		return persistence.ErrInvalidID
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.dir, err)
	}

	tmp, err := os.CreateTemp(d.dir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp.Name(), d.path(id))
}

// remove deletes the document id. Removing a missing document is not an error.
func (d *documents) remove(id string) error {
	if !validID(id) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := os.Remove(d.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// ids lists the stored document ids in lexical order.
func (d *documents) ids() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	files, err := fs.Glob(os.DirFS(d.dir), "*.json")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}
