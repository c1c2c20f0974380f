package schema_test

import (
	"reflect"
	"testing"

	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertsInput struct {
	State string `json:"state" jsonschema:"description=Two-letter US state code (e.g. CA\\, NY)"`
}

type point struct {
	Latitude  float64 `json:"latitude" jsonschema:"description=Latitude of the location"`
	Longitude float64 `json:"longitude" jsonschema:"description=Longitude of the location"`
}

type routeInput struct {
	From  point    `json:"from"`
	Stops []*point `json:"stops,omitempty"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	si, err := schema.New(reflect.TypeOf(alertsInput{}))
	require.NoError(t, err)
	exp := `{
	"properties": {
		"state": {
			"type": "string",
			"description": "Two-letter US state code (e.g. CA, NY)"
		}
	},
	"type": "object",
	"required": [
		"state"
	]
}`
	assert.Equal(t, exp, si.String())

	m := si.Map()
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"state"}, m["required"])
	assert.Contains(t, m["properties"], "state")

	// cached
	si2, err := schema.For[alertsInput]()
	require.NoError(t, err)
	assert.Same(t, si, si2)

	// pointer types resolve to the struct
	si3, err := schema.New(reflect.TypeOf(&point{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"latitude", "longitude"}, si3.Parameters.Required)

	_, err = schema.New(reflect.TypeOf(""))
	assert.EqualError(t, err, "schema: struct type is required, got string")
}

func TestSchema_Nested(t *testing.T) {
	t.Parallel()

	si, err := schema.For[routeInput]()
	require.NoError(t, err)
	from, ok := si.Parameters.Properties.Get("from")
	require.True(t, ok)
	assert.Equal(t, "object", from.Type)
	assert.Empty(t, from.Ref)

	stops, ok := si.Parameters.Properties.Get("stops")
	require.True(t, ok)
	assert.Equal(t, "array", stops.Type)
	require.NotNil(t, stops.Items)
	assert.Empty(t, stops.Items.Ref)
	assert.Equal(t, []string{"from"}, si.Parameters.Required)
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	s, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"state": map[string]any{"type": "string"},
		},
		"required": []string{"state"},
	})
	require.NoError(t, err)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"state"}, s.Required)

	_, err = schema.FromAny(make(chan int))
	assert.Error(t, err)
	assert.Panics(t, func() {
		schema.MustFromAny(func() {})
	})
	assert.NotNil(t, schema.MustFromAny(map[string]any{"type": "string"}))
}
