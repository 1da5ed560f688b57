// Package template parses a declarative
// YAML task-graph template and instantiates it into concrete tasks with
// {{var}} substitution and {{#if var}}...{{/if}} conditionals resolved.
//
// Substitution uses a small hand-rolled scanner rather than text/template:
// text/template's delimiters expose arbitrary pipeline/function-call syntax,
// far more power than a template author should have over what is meant to
// be a whitelisted set of named variables.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cklxx/taskctl/pkg/errs"
	"github.com/cklxx/taskctl/pkg/types"
)

// Parse decodes a YAML document into a TemplateSpec.
func Parse(doc []byte) (types.TemplateSpec, error) {
	var spec types.TemplateSpec
	if err := yaml.Unmarshal(doc, &spec); err != nil {
		return types.TemplateSpec{}, &errs.TemplateError{Detail: "yaml parse", Err: err}
	}
	if spec.Metadata.Name == "" {
		return types.TemplateSpec{}, &errs.TemplateError{Detail: "metadata.name is required"}
	}
	if len(spec.Tasks) == 0 {
		return types.TemplateSpec{}, &errs.TemplateError{Detail: "template declares no tasks"}
	}
	return spec, nil
}

// Values is the resolved variable -> value map for one instantiation.
type Values map[string]string

// Resolve validates the supplied values against spec.Variables (filling
// defaults, rejecting missing required variables and out-of-range enum
// options) and returns the final value set.
func Resolve(spec types.TemplateSpec, provided Values) (Values, error) {
	out := Values{}
	for _, v := range spec.Variables {
		val, ok := provided[v.Name]
		if !ok || val == "" {
			if v.Default != "" {
				val = v.Default
			} else if v.Required {
				return nil, &errs.TemplateError{Detail: fmt.Sprintf("missing required variable %q", v.Name)}
			}
		}
		if v.Type == "enum" && val != "" && !containsStr(v.Options, val) {
			return nil, &errs.TemplateError{Detail: fmt.Sprintf("variable %q: %q is not one of %v", v.Name, val, v.Options)}
		}
		if v.Type == "int" && val != "" {
			if _, err := strconv.Atoi(val); err != nil {
				return nil, &errs.TemplateError{Detail: fmt.Sprintf("variable %q: %q is not an int", v.Name, val)}
			}
		}
		out[v.Name] = val
	}
	return out, nil
}

// Instantiate expands every task stub's title/description/tags with the
// resolved values and returns the stubs in declaration order, ready for the
// engine to insert as real tasks (depends_on indices resolved to real ids by
// the caller once ids are assigned).
func Instantiate(spec types.TemplateSpec, values Values) ([]types.TemplateTaskStub, error) {
	out := make([]types.TemplateTaskStub, 0, len(spec.Tasks))
	for i, stub := range spec.Tasks {
		for _, dep := range stub.DependsOn {
			if dep < 0 || dep >= len(spec.Tasks) || dep == i {
				return nil, &errs.TemplateError{Detail: fmt.Sprintf("task %d: invalid depends_on index %d", i, dep)}
			}
		}
		expanded := stub
		title, err := substitute(stub.Title, values)
		if err != nil {
			return nil, err
		}
		desc, err := substitute(stub.Description, values)
		if err != nil {
			return nil, err
		}
		expanded.Title = title
		expanded.Description = desc
		for j, tag := range expanded.Tags {
			t, err := substitute(tag, values)
			if err != nil {
				return nil, err
			}
			expanded.Tags[j] = t
		}
		out = append(out, expanded)
	}
	return out, nil
}

func containsStr(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// substitute resolves {{var}} tokens and {{#if var}}...{{/if}} blocks
// against values. Conditionals are non-nesting: a template author needing
// nested logic should split the block into separate tasks instead, which
// keeps this scanner a single left-to-right pass.
func substitute(s string, values Values) (string, error) {
	s, err := resolveConditionals(s, values)
	if err != nil {
		return "", err
	}
	return resolveVars(s, values)
}

func resolveConditionals(s string, values Values) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{#if ")
		if start == -1 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		rest := s[start+len("{{#if "):]
		end := strings.Index(rest, "}}")
		if end == -1 {
			return "", &errs.TemplateError{Detail: "unterminated {{#if ...}}"}
		}
		varName := strings.TrimSpace(rest[:end])
		body := rest[end+2:]
		close := strings.Index(body, "{{/if}}")
		if close == -1 {
			return "", &errs.TemplateError{Detail: fmt.Sprintf("unterminated {{#if %s}}", varName)}
		}
		inner := body[:close]
		if truthy(values[varName]) {
			b.WriteString(inner)
		}
		s = body[close+len("{{/if}}"):]
	}
	return b.String(), nil
}

func resolveVars(s string, values Values) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		rest := s[start+2:]
		end := strings.Index(rest, "}}")
		if end == -1 {
			return "", &errs.TemplateError{Detail: "unterminated {{ }}"}
		}
		name := strings.TrimSpace(rest[:end])
		val, ok := values[name]
		if !ok {
			return "", &errs.TemplateError{Detail: fmt.Sprintf("undefined template variable %q", name)}
		}
		b.WriteString(val)
		s = rest[end+2:]
	}
	return b.String(), nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}
