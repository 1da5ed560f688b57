package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoTaskTemplate = `
metadata:
  name: onboarding
  version: "1"
tasks:
  - title: "Set up {{service}} access"
  - title: "Review {{service}} setup"
    depends_on: [0]
`

func TestParse_RequiresNameAndTasks(t *testing.T) {
	_, err := Parse([]byte("metadata:\n  name: \"\"\ntasks: []\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("metadata:\n  name: x\ntasks: []\n"))
	assert.Error(t, err)

	spec, err := Parse([]byte(twoTaskTemplate))
	require.NoError(t, err)
	assert.Equal(t, "onboarding", spec.Metadata.Name)
	assert.Len(t, spec.Tasks, 2)
}

func TestResolve_DefaultsAndRequired(t *testing.T) {
	doc := `
metadata:
  name: t
  version: "1"
variables:
  - name: env
    type: enum
    required: true
    options: ["staging", "prod"]
  - name: owner
    type: string
    default: "unassigned"
tasks:
  - title: "deploy"
`
	spec, err := Parse([]byte(doc))
	require.NoError(t, err)

	_, err = Resolve(spec, Values{})
	assert.Error(t, err, "missing required variable with no default should fail")

	values, err := Resolve(spec, Values{"env": "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", values["env"])
	assert.Equal(t, "unassigned", values["owner"])

	_, err = Resolve(spec, Values{"env": "canary"})
	assert.Error(t, err, "enum value outside options should fail")
}

func TestInstantiate_SubstitutesVariables(t *testing.T) {
	spec, err := Parse([]byte(twoTaskTemplate))
	require.NoError(t, err)

	stubs, err := Instantiate(spec, Values{"service": "billing"})
	require.NoError(t, err)
	require.Len(t, stubs, 2)
	assert.Equal(t, "Set up billing access", stubs[0].Title)
	assert.Equal(t, "Review billing setup", stubs[1].Title)
	assert.Equal(t, []int{0}, stubs[1].DependsOn)
}

func TestInstantiate_UndefinedVariableErrors(t *testing.T) {
	spec, err := Parse([]byte(twoTaskTemplate))
	require.NoError(t, err)
	_, err = Instantiate(spec, Values{})
	assert.Error(t, err)
}

func TestInstantiate_InvalidDependsOnIndex(t *testing.T) {
	doc := `
metadata:
  name: bad
  version: "1"
tasks:
  - title: "a"
    depends_on: [5]
`
	spec, err := Parse([]byte(doc))
	require.NoError(t, err)
	_, err = Instantiate(spec, Values{})
	assert.Error(t, err)
}

func TestInstantiate_SelfDependencyRejected(t *testing.T) {
	doc := `
metadata:
  name: bad
  version: "1"
tasks:
  - title: "a"
    depends_on: [0]
`
	spec, err := Parse([]byte(doc))
	require.NoError(t, err)
	_, err = Instantiate(spec, Values{})
	assert.Error(t, err)
}

func TestConditionalBlock_Resolved(t *testing.T) {
	s, err := substitute("base{{#if extra}} plus extra{{/if}} tail", Values{"extra": "yes"})
	require.NoError(t, err)
	assert.Equal(t, "base plus extra tail", s)

	s, err = substitute("base{{#if extra}} plus extra{{/if}} tail", Values{"extra": "no"})
	require.NoError(t, err)
	assert.Equal(t, "base tail", s)
}

func TestTruthy(t *testing.T) {
	assert.False(t, truthy(""))
	assert.False(t, truthy("0"))
	assert.False(t, truthy("false"))
	assert.False(t, truthy("no"))
	assert.True(t, truthy("yes"))
	assert.True(t, truthy("1"))
}
