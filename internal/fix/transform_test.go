// File: internal/fix/transform_test.go
package fix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

func TestRepairSyntaxMissingColon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		line    int
		want    string
	}{
		{"def line", "def main()\n    pass", 1, "def main():\n    pass"},
		{"if line", "if x > 0\n    print(x)", 1, "if x > 0:\n    print(x)"},
		{"for line with trailing space", "for i in range(3) \n    print(i)", 1, "for i in range(3):\n    print(i)"},
		{"already has colon", "def main():\n    pass", 1, "def main():\n    pass"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, repairSyntax(tt.content, tt.line))
		})
	}
}

func TestAppendMissingClosers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"open paren", "print(1", "print(1)"},
		{"nested", "f([1, 2", "f([1, 2])"},
		{"balanced", "f([1, 2])", "f([1, 2])"},
		{"bracket inside string ignored", `s = "(["` + "\n", `s = "(["` + "\n"},
		{"escaped quote", `s = "a\"(" + g(`, `s = "a\"(" + g()`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, appendMissingClosers(tt.content))
		})
	}
}

func TestReindentLine(t *testing.T) {
	t.Parallel()

	content := "def main():\n        x = 1\n"
	got := reindentLine(content, 2)
	assert.Equal(t, "def main():\n    x = 1\n", got)
}

func TestUseSafeLookup(t *testing.T) {
	t.Parallel()

	content := "name = record['name']\nother = record['other']\n"
	got := useSafeLookup(content, 1)
	lines := strings.Split(got, "\n")
	assert.Equal(t, "name = record.get('name')", lines[0])
	assert.Equal(t, "other = record['other']", lines[1], "only the offending line changes")
}

func TestInsertNilGuard(t *testing.T) {
	t.Parallel()

	content := "    value = obj.field\n"
	got := insertNilGuard(content, 1)
	lines := strings.Split(got, "\n")
	assert.Equal(t, "    if obj is not None:", lines[0])
	assert.Equal(t, "        value = obj.field", lines[1])
}

func TestInsertBoundsCheck(t *testing.T) {
	t.Parallel()

	content := "item = values[i]\n"
	got := insertBoundsCheck(content, 1)
	lines := strings.Split(got, "\n")
	assert.Equal(t, "if i < len(values):", lines[0])
	assert.Equal(t, "    item = values[i]", lines[1])
}

func TestWrapWithRetry(t *testing.T) {
	t.Parallel()

	content := "resp = fetch(url)\n"
	got := wrapWithRetry(content, 1)
	assert.Contains(t, got, "for _attempt in range(3):")
	assert.Contains(t, got, "        resp = fetch(url)")
	assert.Contains(t, got, "time.sleep(2 ** _attempt)")
}

func TestTransformForKindOutOfRangeLine(t *testing.T) {
	t.Parallel()

	content := "print('ok')\n"
	detected := schemas.DetectedError{
		Kind:     schemas.ErrorKindRuntime,
		Message:  "KeyError: 'x'",
		Location: schemas.Location{Line: 99},
	}
	assert.Equal(t, content, transformForKind(detected, content))
}
