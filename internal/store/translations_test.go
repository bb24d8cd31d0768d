package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/canvaspipe/internal/ir"
)

func TestTranslations_PutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetTranslation(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	content := ir.Obj(ir.O("title", ir.IRString("Bonjour")), ir.O("rank", ir.IRInt(2)))
	require.NoError(t, s.PutTranslation(ctx, Translation{
		Key: "k1", Fingerprint: "fp", Language: "fr", ScopeID: "p=p1", Content: content,
	}))

	got, ok, err := s.GetTranslation(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, content, got)
}

func TestTranslations_FirstWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := Translation{Key: "k1", Language: "de", Content: ir.Obj(ir.O("t", ir.IRString("eins")))}
	second := Translation{Key: "k1", Language: "de", Content: ir.Obj(ir.O("t", ir.IRString("zwei")))}
	require.NoError(t, s.PutTranslation(ctx, first))
	require.NoError(t, s.PutTranslation(ctx, second))

	got, ok, err := s.GetTranslation(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "eins", got.Text("t"))

	n, err := s.CountTranslations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
