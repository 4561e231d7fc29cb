package services

import (
	"fmt"

	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// EmployeeService reads the external agent registry (employees.json). The
// engine never writes this file; every lookup re-reads it so registry edits
// from other processes take effect on the next trigger.
type EmployeeService struct {
	file *store.File[map[string]models.Employee]
}

// NewEmployeeService creates an EmployeeService over the registry file.
func NewEmployeeService(st *store.Store, path string) *EmployeeService {
	return &EmployeeService{
		file: store.NewFile(st, path, func() map[string]models.Employee {
			return map[string]models.Employee{}
		}),
	}
}

// Get returns the employee record for a name.
func (s *EmployeeService) Get(name string) (models.Employee, error) {
	reg, err := s.file.Read()
	if err != nil {
		return models.Employee{}, err
	}
	emp, ok := reg[name]
	if !ok {
		return models.Employee{}, fmt.Errorf("employee %s: %w", name, ErrNotFound)
	}
	return emp, nil
}

// List returns the whole registry.
func (s *EmployeeService) List() (map[string]models.Employee, error) {
	return s.file.Read()
}

// Executor is a fully resolved invocation target for one task.
type Executor struct {
	Agent          string
	Role           string
	Model          string
	Workdir        string
	AllowedTools   []string
	PermissionMode string
	MaxBudgetUSD   float64
	FallbackModel  string
	Runtime        models.Runtime
}

// Resolve maps a task's executor name onto a concrete invocation target.
// The task's project_path, when set, overrides the employee's workdir. The
// runtime comes from the employee's model unless the caller overrides it.
func (s *EmployeeService) Resolve(task models.Task, runtimeOverride models.Runtime) (Executor, error) {
	emp, err := s.Get(task.Executor)
	if err != nil {
		return Executor{}, err
	}

	workdir := emp.Workdir
	if task.ProjectPath != "" {
		workdir = task.ProjectPath
	}

	runtime := models.RuntimeForModel(emp.Model)
	if runtimeOverride != "" {
		runtime = runtimeOverride
	}

	return Executor{
		Agent:          task.Executor,
		Role:           emp.Role,
		Model:          emp.Model,
		Workdir:        workdir,
		AllowedTools:   append([]string(nil), emp.AllowedTools...),
		PermissionMode: emp.PermissionMode,
		MaxBudgetUSD:   emp.MaxBudgetUSD,
		FallbackModel:  emp.FallbackModel,
		Runtime:        runtime,
	}, nil
}
