// File: internal/classify/classifier_test.go
package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

const pythonTraceback = `Traceback (most recent call last):
  File "app.py", line 12, in <module>
    import requests
ModuleNotFoundError: No module named 'requests'
`

const terraformPlanFailure = `Error: Invalid block definition

  on main.tf line 14, in resource "aws_instance" "web":
  14:   tags {

A block definition must have block content delimited by "{" and "}".
`

const ansibleUnreachable = `PLAY [webservers] *****************************

TASK [Gathering Facts] ************************
fatal: [web01]: UNREACHABLE! => {"changed": false, "msg": "Failed to connect to the host via ssh"}
`

func TestClassifyText(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	tests := []struct {
		name   string
		target schemas.TargetKind
		text   string
		want   schemas.ErrorKind
	}{
		{"python missing module", schemas.TargetPython, "ModuleNotFoundError: No module named 'requests'", schemas.ErrorKindDependency},
		{"python syntax error", schemas.TargetPython, "SyntaxError: invalid syntax", schemas.ErrorKindSyntax},
		{"python key error", schemas.TargetPython, "KeyError: 'name'", schemas.ErrorKindRuntime},
		{"python connection refused", schemas.TargetPython, "ConnectionRefusedError: [Errno 111] Connection refused", schemas.ErrorKindNetwork},
		{"python permission", schemas.TargetPython, "PermissionError: [Errno 13] Permission denied: '/etc/hosts'", schemas.ErrorKindPermission},
		{"terraform provider missing", schemas.TargetTerraform, "Error: Failed to install provider", schemas.ErrorKindDependency},
		{"terraform state lock", schemas.TargetTerraform, "Error acquiring the state lock", schemas.ErrorKindResource},
		{"ansible yaml", schemas.TargetAnsible, "Syntax Error while loading YAML", schemas.ErrorKindSyntax},
		{"shell command not found", schemas.TargetShell, "bash: pyhton: command not found", schemas.ErrorKindDependency},
		{"shell unbound variable", schemas.TargetShell, "line 3: FOO: unbound variable", schemas.ErrorKindConfiguration},
		{"nothing matches", schemas.TargetPython, "everything is fine here", schemas.ErrorKindUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.classifyText(tt.target, tt.text))
		})
	}
}

// A traceback mentioning an import inside a dependency message must land
// on dependency, not runtime: table order is part of the contract.
func TestClassifyTextOrderMatters(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	text := "ImportError: cannot import name 'urlparse' from 'urllib'\nTypeError mentioned later"
	assert.Equal(t, schemas.ErrorKindDependency, c.classifyText(schemas.TargetPython, text))
}

func TestFromOutputCleanRun(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	detected := c.FromOutput(schemas.TargetPython, "app.py", "all good\n", "", 0)
	assert.Nil(t, detected)
}

func TestFromOutputSentinelOnZeroExit(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	detected := c.FromOutput(schemas.TargetPython, "app.py", "", pythonTraceback, 0)
	require.NotNil(t, detected)
	assert.Equal(t, schemas.ErrorKindDependency, detected.Kind)
}

func TestFromOutputPythonTraceback(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	detected := c.FromOutput(schemas.TargetPython, "app.py", "", pythonTraceback, 1)
	require.NotNil(t, detected)
	assert.Equal(t, schemas.ErrorKindDependency, detected.Kind)
	assert.Equal(t, schemas.TargetPython, detected.Target)
	assert.Equal(t, "app.py", detected.Location.File)
	assert.Equal(t, 12, detected.Location.Line)
	assert.Equal(t, 1, detected.ExitCode)
	assert.Contains(t, detected.Message, "No module named 'requests'")
}

func TestFromOutputTerraformLocation(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	detected := c.FromOutput(schemas.TargetTerraform, "", terraformPlanFailure, "", 1)
	require.NotNil(t, detected)
	assert.Equal(t, schemas.ErrorKindSyntax, detected.Kind)
	assert.Equal(t, "main.tf", detected.Location.File)
	assert.Equal(t, 14, detected.Location.Line)
}

func TestFromOutputAnsibleUnreachable(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	detected := c.FromOutput(schemas.TargetAnsible, "site.yml", ansibleUnreachable, "", 4)
	require.NotNil(t, detected)
	assert.Equal(t, schemas.ErrorKindNetwork, detected.Kind)
	assert.Contains(t, detected.Message, "UNREACHABLE!")
}

func TestFromFaultCapturesSnippet(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	dir := t.TempDir()
	script := filepath.Join(dir, "app.py")
	source := "import os\nimport sys\n\ndata = {}\nprint(data['missing'])\n"
	require.NoError(t, os.WriteFile(script, []byte(source), 0o644))

	detected := c.FromFault(schemas.TargetPython, Fault{
		FaultType: "KeyError",
		Message:   "'missing'",
		Location:  schemas.Location{File: script, Line: 5},
	})

	assert.Equal(t, schemas.ErrorKindRuntime, detected.Kind)
	assert.Equal(t, "KeyError", detected.ExceptionType)
	assert.Equal(t, "KeyError: 'missing'", detected.Message)
	assert.Contains(t, detected.SourceSnippet, "print(data['missing'])")
}

func TestFromFaultMissingFile(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	detected := c.FromFault(schemas.TargetPython, Fault{
		FaultType: "ValueError",
		Message:   "bad input",
		Location:  schemas.Location{File: "/nonexistent/app.py", Line: 3},
	})
	assert.Empty(t, detected.SourceSnippet)
	assert.Equal(t, schemas.ErrorKindRuntime, detected.Kind)
}

func TestErrorSummaryPicksLastErrorBlock(t *testing.T) {
	t.Parallel()

	output := "step one ok\nstep two ok\nError: something exploded\nmore detail\n"
	summary := errorSummary(output)
	assert.True(t, strings.HasPrefix(summary, "Error: something exploded"))
	assert.Contains(t, summary, "more detail")
}

func TestTruncateLongMessages(t *testing.T) {
	t.Parallel()
	c := NewClassifier(zap.NewNop())

	long := strings.Repeat("x", 10_000)
	detected := c.FromOutput(schemas.TargetShell, "", "", "error: "+long, 1)
	require.NotNil(t, detected)
	assert.LessOrEqual(t, len(detected.Message), maxMessageLength)
}

// FuzzClassify verifies classification never panics and always produces a
// known kind, whatever bytes the tooling emits.
func FuzzClassify(f *testing.F) {
	f.Add([]byte(pythonTraceback))
	f.Add([]byte(terraformPlanFailure))
	f.Add([]byte("error: \x00\xff garbage"))

	c := NewClassifier(zap.NewNop())
	targets := []schemas.TargetKind{
		schemas.TargetPython, schemas.TargetTerraform,
		schemas.TargetAnsible, schemas.TargetShell,
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		text, err := consumer.GetString()
		if err != nil {
			return
		}
		for _, target := range targets {
			detected := c.FromOutput(target, "artifact", "", text, 1)
			if detected == nil {
				t.Fatalf("nonzero exit must always classify (target %s)", target)
			}
			if detected.Kind == "" {
				t.Fatalf("classification produced empty kind for %q", text)
			}
		}
	})
}
