package util

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalJSON(t *testing.T) {
	type payload struct {
		Name Optional[string] `json:"name"`
		Age  Optional[int]    `json:"age"`
	}

	t.Run("marshal_set_and_unset", func(t *testing.T) {
		data, err := json.Marshal(payload{Name: Some("Ana")})
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ana","age":null}`, string(data))
	})

	t.Run("unmarshal_null", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{"name":null,"age":17}`), &p))
		assert.False(t, p.Name.IsSet)
		assert.True(t, p.Age.IsSet)
		assert.Equal(t, 17, p.Age.Val)
	})

	t.Run("unmarshal_absent_field", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
		assert.False(t, p.Name.IsSet)
		assert.False(t, p.Age.IsSet)
	})
}

func TestOptionalScan(t *testing.T) {
	t.Run("nil_clears", func(t *testing.T) {
		o := Some("previous")
		require.NoError(t, o.Scan(nil))
		assert.False(t, o.IsSet)
	})

	t.Run("string_value", func(t *testing.T) {
		var o Optional[string]
		require.NoError(t, o.Scan("hello"))
		assert.True(t, o.IsSet)
		assert.Equal(t, "hello", o.Val)
	})

	t.Run("uuid_value", func(t *testing.T) {
		id := uuid.New()
		var o Optional[uuid.UUID]
		require.NoError(t, o.Scan(id.String()))
		assert.True(t, o.IsSet)
		assert.Equal(t, id, o.Val)
	})
}

func TestOptionalValue(t *testing.T) {
	unset := None[string]()
	v, err := unset.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	set := Some("stored")
	v, err = set.Value()
	require.NoError(t, err)
	assert.Equal(t, "stored", v)
}

func TestOptionalUnwrap(t *testing.T) {
	assert.Equal(t, 5, Some(5).Unwrap())
	assert.Equal(t, 9, None[int]().UnwrapOr(9))
	assert.Panics(t, func() { None[int]().Unwrap() })
}
