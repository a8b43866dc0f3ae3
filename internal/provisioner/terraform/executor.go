package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/hashicorp/terraform-exec/tfexec"
	"go.uber.org/zap"

	"github.com/cloudconsole/engine/pkg/logger"
)

// Runner drives one terraform working directory.
type Runner interface {
	Init(ctx context.Context) error
	// Plan reports whether the plan contains changes.
	Plan(ctx context.Context) (bool, error)
	// Apply runs apply -auto-approve.
	Apply(ctx context.Context) error
	// Destroy runs destroy -auto-approve.
	Destroy(ctx context.Context) error
	// Output returns the raw JSON value of every root output.
	Output(ctx context.Context) (map[string]json.RawMessage, error)
	// Close flushes buffered output lines.
	Close()
}

// Factory creates a Runner for a working directory.
type Factory func(dir string) (Runner, error)

// NewFactory resolves bin on PATH once and returns a Factory of Executors.
func NewFactory(bin string) (Factory, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("terraform not found in PATH: %w", err)
	}
	return func(dir string) (Runner, error) {
		return NewExecutor(dir, path)
	}, nil
}

// Executor wraps terraform-exec for running Terraform commands. Output is
// streamed to the log line by line.
type Executor struct {
	workingDir string
	tf         *tfexec.Terraform
	stdout     *lineWriter
	stderr     *lineWriter
}

var _ Runner = (*Executor)(nil)

func NewExecutor(workingDir, execPath string) (*Executor, error) {
	tf, err := tfexec.NewTerraform(workingDir, execPath)
	if err != nil {
		return nil, fmt.Errorf("create terraform executor: %w", err)
	}

	log := logger.Named("terraform").With(zap.String("dir", workingDir))
	e := &Executor{
		workingDir: workingDir,
		tf:         tf,
		stdout:     newLineWriter(log, "stdout"),
		stderr:     newLineWriter(log, "stderr"),
	}
	tf.SetStdout(e.stdout)
	tf.SetStderr(e.stderr)
	if std, err := zap.NewStdLogAt(log, zap.DebugLevel); err == nil {
		tf.SetLogger(std)
	}
	return e, nil
}

func (e *Executor) begin(command string) {
	e.stdout.setCommand(command)
	e.stderr.setCommand(command)
	logger.L().Info("running terraform "+command, zap.String("working_dir", e.workingDir))
}

func (e *Executor) end() {
	e.stdout.Flush()
	e.stderr.Flush()
}

func (e *Executor) Init(ctx context.Context) error {
	e.begin("init")
	defer e.end()
	if err := e.tf.Init(ctx); err != nil {
		return fmt.Errorf("terraform init: %w", err)
	}
	return nil
}

func (e *Executor) Plan(ctx context.Context) (bool, error) {
	e.begin("plan")
	defer e.end()
	changes, err := e.tf.Plan(ctx)
	if err != nil {
		return false, fmt.Errorf("terraform plan: %w", err)
	}
	return changes, nil
}

func (e *Executor) Apply(ctx context.Context) error {
	e.begin("apply")
	defer e.end()
	if err := e.tf.Apply(ctx); err != nil {
		return fmt.Errorf("terraform apply: %w", err)
	}
	return nil
}

func (e *Executor) Destroy(ctx context.Context) error {
	e.begin("destroy")
	defer e.end()
	if err := e.tf.Destroy(ctx); err != nil {
		return fmt.Errorf("terraform destroy: %w", err)
	}
	return nil
}

func (e *Executor) Output(ctx context.Context) (map[string]json.RawMessage, error) {
	e.begin("output")
	defer e.end()
	outputs, err := e.tf.Output(ctx)
	if err != nil {
		return nil, fmt.Errorf("terraform output: %w", err)
	}
	return convertOutputs(outputs), nil
}

func (e *Executor) Close() { e.end() }

// convertOutputs keeps output values and drops sensitive ones.
func convertOutputs(tfOutputs map[string]tfexec.OutputMeta) map[string]json.RawMessage {
	outputs := make(map[string]json.RawMessage, len(tfOutputs))
	for key, output := range tfOutputs {
		if output.Sensitive {
			continue
		}
		outputs[key] = output.Value
	}
	return outputs
}
