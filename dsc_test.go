package tsunagi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
)

func bagCtx(t *testing.T, pairs map[string]string) context.Context {
	t.Helper()
	members := make([]baggage.Member, 0, len(pairs))
	for k, v := range pairs {
		m, err := baggage.NewMember(k, v)
		require.NoError(t, err)
		members = append(members, m)
	}
	bag, err := baggage.New(members...)
	require.NoError(t, err)
	return baggage.ContextWithBaggage(context.Background(), bag)
}

func TestSamplingContextFromBaggage(t *testing.T) {
	ctx := bagCtx(t, map[string]string{
		"sentry-trace_id":    "d4cda95b652f4a1592b449d5929fda1b",
		"sentry-sample_rate": "0.5",
		"unrelated":          "value",
	})

	dsc, ok := samplingContextFromBaggage(ctx)
	require.True(t, ok)
	assert.True(t, dsc.Frozen, "propagated context is forwarded unchanged")
	assert.Equal(t, map[string]string{
		"trace_id":    "d4cda95b652f4a1592b449d5929fda1b",
		"sample_rate": "0.5",
	}, dsc.Entries)
}

func TestSamplingContextAbsentWithoutSentryMembers(t *testing.T) {
	_, ok := samplingContextFromBaggage(context.Background())
	assert.False(t, ok)

	ctx := bagCtx(t, map[string]string{"unrelated": "value"})
	_, ok = samplingContextFromBaggage(ctx)
	assert.False(t, ok)
}
