// File: internal/analyze/pysource/pysource.go

// Package pysource inspects Python source text for structural
// anti-patterns that commonly sit behind runtime failures. It backs the
// analyzer's optional source-analysis stage for the dynamic-script target.
package pysource

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// Analyzer parses Python snippets with tree-sitter and flags known
// anti-patterns. It also serves as an in-process syntax probe for the
// python target adapter.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer creates a Python source analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger.Named("pysource")}
}

// parse builds a tree for the snippet. Parsing never hard-fails on bad
// input; tree-sitter produces a tree with ERROR nodes instead.
func (a *Analyzer) parse(source []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse python source: %w", err)
	}
	return tree, nil
}

// CheckSyntax reports whether the source parses cleanly. The message names
// the first error node's position when it does not.
func (a *Analyzer) CheckSyntax(source []byte) (bool, string) {
	tree, err := a.parse(source)
	if err != nil {
		return false, err.Error()
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return true, ""
	}

	if node := firstErrorNode(root); node != nil {
		point := node.StartPoint()
		return false, fmt.Sprintf("syntax error near line %d, column %d", point.Row+1, point.Column+1)
	}
	return false, "syntax error"
}

// FindAntiPatterns scans a snippet and returns low-ceremony suggestions for
// the structures it recognizes: a bare except clause swallowing every
// exception, and a mutable container used as a default parameter value.
func (a *Analyzer) FindAntiPatterns(source string) []schemas.FixSuggestion {
	tree, err := a.parse([]byte(source))
	if err != nil {
		a.logger.Debug("skipping source analysis", zap.Error(err))
		return nil
	}
	defer tree.Close()

	var suggestions []schemas.FixSuggestion
	walk(tree.RootNode(), func(node *sitter.Node) {
		switch node.Type() {
		case "except_clause":
			if isBareExcept(node) {
				suggestions = append(suggestions, schemas.FixSuggestion{
					Description:    "Catch a specific exception type instead of a bare except",
					Reasoning:      "A bare except swallows every failure, including the one being diagnosed, and hides the real cause.",
					Confidence:     schemas.ConfidenceLow,
					Kind:           schemas.FixKindCodeChange,
					TargetLocation: schemas.Location{Line: int(node.StartPoint().Row) + 1},
					Priority:       8,
				})
			}
		case "default_parameter":
			if isMutableDefault(node) {
				suggestions = append(suggestions, schemas.FixSuggestion{
					Description:    "Replace the mutable default argument with None and construct inside the function",
					Reasoning:      "Default values are evaluated once; a shared mutable container leaks state between calls.",
					Confidence:     schemas.ConfidenceMedium,
					Kind:           schemas.FixKindCodeChange,
					TargetLocation: schemas.Location{Line: int(node.StartPoint().Row) + 1},
					Priority:       8,
				})
			}
		}
	})
	return suggestions
}

// isBareExcept reports whether an except_clause names no exception type.
// The clause's named children are the optional exception expression plus
// the body block; a lone block means a bare except.
func isBareExcept(node *sitter.Node) bool {
	return node.NamedChildCount() == 1 && node.NamedChild(0).Type() == "block"
}

// isMutableDefault reports whether a default_parameter's value is a list,
// dict, or set literal.
func isMutableDefault(node *sitter.Node) bool {
	value := node.ChildByFieldName("value")
	if value == nil {
		return false
	}
	switch value.Type() {
	case "list", "dictionary", "set":
		return true
	}
	return false
}

// walk visits every node depth-first.
func walk(node *sitter.Node, visit func(*sitter.Node)) {
	if node == nil {
		return
	}
	visit(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), visit)
	}
}

// firstErrorNode finds the shallowest ERROR or MISSING node in the tree.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
