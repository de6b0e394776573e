// File: internal/analyze/pysource/pysource_test.go
package pysource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

func TestCheckSyntax(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(zap.NewNop())

	tests := []struct {
		name   string
		source string
		valid  bool
	}{
		{"clean module", "import os\n\nprint(os.getcwd())\n", true},
		{"missing colon", "def main()\n    pass\n", false},
		{"unbalanced bracket", "values = [1, 2, 3\nprint(values)\n", false},
		{"empty source", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			valid, msg := a.CheckSyntax([]byte(tt.source))
			assert.Equal(t, tt.valid, valid)
			if !tt.valid {
				assert.Contains(t, msg, "syntax error")
			}
		})
	}
}

func TestFindAntiPatternsBareExcept(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(zap.NewNop())

	source := "try:\n    risky()\nexcept:\n    pass\n"
	suggestions := a.FindAntiPatterns(source)

	require.Len(t, suggestions, 1)
	s := suggestions[0]
	assert.Equal(t, schemas.FixKindCodeChange, s.Kind)
	assert.Contains(t, s.Description, "bare except")
	assert.Equal(t, 3, s.TargetLocation.Line)
}

// A typed except clause is fine and must not be flagged.
func TestFindAntiPatternsTypedExcept(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(zap.NewNop())

	source := "try:\n    risky()\nexcept ValueError:\n    pass\n"
	assert.Empty(t, a.FindAntiPatterns(source))
}

func TestFindAntiPatternsMutableDefault(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(zap.NewNop())

	source := "def collect(item, bucket=[]):\n    bucket.append(item)\n    return bucket\n"
	suggestions := a.FindAntiPatterns(source)

	require.Len(t, suggestions, 1)
	assert.Contains(t, suggestions[0].Description, "mutable default")
	assert.Equal(t, schemas.ConfidenceMedium, suggestions[0].Confidence)
}

func TestFindAntiPatternsImmutableDefault(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(zap.NewNop())

	source := "def greet(name='world'):\n    return 'hello ' + name\n"
	assert.Empty(t, a.FindAntiPatterns(source))
}
