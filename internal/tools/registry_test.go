package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes the message field back" }
func (echoTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
		"required":             []any{"message"},
		"additionalProperties": false,
	}
}
func (echoTool) Call(_ context.Context, input map[string]any) (Result, error) {
	return TextResult(input["message"].(string)), nil
}

func TestRegistryDispatchValidatesSchema(t *testing.T) {
	r := NewRegistry(echoTool{})

	res, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)

	_, err = r.Dispatch(context.Background(), "echo", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, agenterrors.ErrSchemaInvalid)
	assert.Contains(t, err.Error(), "Invalid tool input:")
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(echoTool{})
	_, err := r.Dispatch(context.Background(), "nope", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, agenterrors.ErrToolRuntime)
}

func TestRegistryPanicsOnDuplicateName(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry(echoTool{}, echoTool{})
	})
}

func TestRegistrySchemasStableOrder(t *testing.T) {
	r := NewRegistry(echoTool{})
	schemas := r.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Name)
}
