package attrs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ashita-ai/tsunagi/internal/attrs"
)

func TestZeroValueIsEmpty(t *testing.T) {
	var s attrs.Set
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has(attrs.HTTPMethod))
	assert.Nil(t, s.Map())

	_, ok := s.String(attrs.HTTPMethod)
	assert.False(t, ok)
}

func TestStringFirstPresentKeyWins(t *testing.T) {
	s := attrs.New([]attribute.KeyValue{
		attribute.String(attrs.HTTPRequestMethod, "POST"),
	})

	// Old-style key absent, new-style alias picked up.
	method, ok := s.String(attrs.HTTPMethod, attrs.HTTPRequestMethod)
	require.True(t, ok)
	assert.Equal(t, "POST", method)
}

func TestStringRendersNonStringValues(t *testing.T) {
	s := attrs.New([]attribute.KeyValue{
		attribute.Int(attrs.HTTPStatusCode, 503),
	})
	v, ok := s.String(attrs.HTTPStatusCode)
	require.True(t, ok)
	assert.Equal(t, "503", v)
}

func TestIntFromIntAndString(t *testing.T) {
	s := attrs.New([]attribute.KeyValue{
		attribute.Int(attrs.HTTPStatusCode, 404),
		attribute.String(attrs.RPCGRPCStatusCode, "5"),
		attribute.String(attrs.DBSystem, "postgresql"),
	})

	n, ok := s.Int(attrs.HTTPStatusCode)
	require.True(t, ok)
	assert.Equal(t, 404, n)

	n, ok = s.Int(attrs.RPCGRPCStatusCode)
	require.True(t, ok)
	assert.Equal(t, 5, n)

	// Present but not numeric.
	_, ok = s.Int(attrs.DBSystem)
	assert.False(t, ok)

	// Absent.
	_, ok = s.Int(attrs.FaaSTrigger)
	assert.False(t, ok)
}

func TestDuplicateKeysLastWins(t *testing.T) {
	s := attrs.New([]attribute.KeyValue{
		attribute.String(attrs.HTTPMethod, "GET"),
		attribute.String(attrs.HTTPMethod, "PUT"),
	})
	method, ok := s.String(attrs.HTTPMethod)
	require.True(t, ok)
	assert.Equal(t, "PUT", method)
	assert.Equal(t, 1, s.Len())
}

func TestMapRendersPlainValues(t *testing.T) {
	s := attrs.New([]attribute.KeyValue{
		attribute.String(attrs.HTTPMethod, "GET"),
		attribute.Int("retries", 3),
		attribute.Bool("cache.hit", true),
	})

	m := s.Map()
	require.Len(t, m, 3)
	assert.Equal(t, "GET", m[attrs.HTTPMethod])
	assert.Equal(t, int64(3), m["retries"])
	assert.Equal(t, true, m["cache.hit"])
}
