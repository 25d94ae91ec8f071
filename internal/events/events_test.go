package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WireShape(t *testing.T) {
	wire, err := Encode(RecipeCreated, map[string]string{"recipe_id": "r1"})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(wire, &decoded))
	assert.JSONEq(t, `"recipe:created"`, string(decoded["type"]))
	assert.JSONEq(t, `{"recipe_id":"r1"}`, string(decoded["data"]))
}

func TestEncode_NilPayload(t *testing.T) {
	wire, err := Encode(Ping, nil)
	require.NoError(t, err)

	env, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, Ping, env.Type)
	assert.JSONEq(t, "null", string(env.Data))
}

func TestDecode_RawPayloadPreserved(t *testing.T) {
	env, err := Decode([]byte(`{"type":"meal_plan:created","data":{"day":0}}`))
	require.NoError(t, err)
	assert.Equal(t, MealPlanCreated, env.Type)
	assert.JSONEq(t, `{"day":0}`, string(env.Data))
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestEventType_Known(t *testing.T) {
	assert.True(t, RecipeCreated.Known())
	assert.True(t, DataSync.Known())
	assert.False(t, EventType("recipe:burned").Known())
}

func TestParseClientMessage_Ping(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"ping","timestamp":42}`))
	require.NoError(t, err)
	assert.Equal(t, ClientPing, msg.Type)
	assert.JSONEq(t, "42", string(msg.Timestamp))
}

func TestParseClientMessage_OpaqueTimestamp(t *testing.T) {
	// The correlation token is opaque: strings survive untouched too.
	msg, err := ParseClientMessage([]byte(`{"type":"ping","timestamp":"2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-01-01T00:00:00Z"`, string(msg.Timestamp))
}

func TestParseClientMessage_Subscribe(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"subscribe","subscription":"recipes"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientSubscribe, msg.Type)
	assert.Equal(t, "recipes", msg.Subscription)
}

func TestParseClientMessage_UnknownTypeParses(t *testing.T) {
	// Unknown kinds must parse so the caller can ignore them.
	msg, err := ParseClientMessage([]byte(`{"type":"future_thing","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "future_thing", msg.Type)
}

func TestParseClientMessage_Errors(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{{`))
	assert.Error(t, err)

	_, err = ParseClientMessage([]byte(`{"timestamp":1}`))
	assert.Error(t, err)
}
