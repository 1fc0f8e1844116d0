package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postingSchema = `{
  "type": "object",
  "required": ["title", "company"],
  "properties": {
    "title":   {"type": "string", "minLength": 1},
    "company": {"type": "string", "minLength": 1},
    "skills":  {"type": "array", "items": {"type": "string"}}
  }
}`

func TestValidator_RegisterAndValidate(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Register("posting", postingSchema))
	assert.True(t, v.Has("posting"))

	res, err := v.Validate("posting", map[string]interface{}{
		"title":   "Go Engineer",
		"company": "Acme",
		"skills":  []interface{}{"go"},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = v.Validate("posting", []byte(`{"title": "Go Engineer", "skills": [1]}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.HasErrors("company"))
	assert.NotEmpty(t, res.GetErrorMessages())
}

func TestValidator_UnknownSchema(t *testing.T) {
	_, err := NewValidator().Validate("missing", map[string]interface{}{})
	require.Error(t, err)
}

func TestValidator_RegisterInvalidSchema(t *testing.T) {
	err := NewValidator().Register("broken", `{"type": 12}`)
	require.Error(t, err)
}

func TestValidateInput_EmptySchemaAcceptsAnything(t *testing.T) {
	res, err := ValidateInput(map[string]interface{}{"x": 1}, nil)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestFormatHelpers(t *testing.T) {
	assert.True(t, ValidateEmail("a.user@example.com"))
	assert.False(t, ValidateEmail("not-an-email"))
	assert.True(t, ValidatePhone("+1 (555) 123-4567"))
	assert.False(t, ValidatePhone("123"))
	assert.True(t, ValidateURL("https://jobs.example.com/apply/1"))
	assert.False(t, ValidateURL("ftp//nope"))
}
