package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]Store{
		"memory": NewMemStore(),
		"badger": badgerStore,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "step.download.images")
			require.ErrorIs(t, err, ErrNotFound)

			entry := &Entry{
				StepID:      "step.download.images",
				Fingerprint: "abc",
				RunID:       "run-1",
				CompletedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			}
			require.NoError(t, entry.SetOutput(cty.ObjectVal(map[string]cty.Value{
				"path":  cty.StringVal("data/images.zip"),
				"bytes": cty.NumberIntVal(42),
			})))
			require.NoError(t, store.Put(ctx, entry))

			got, err := store.Get(ctx, "step.download.images")
			require.NoError(t, err)
			assert.Equal(t, "abc", got.Fingerprint)
			assert.True(t, entry.CompletedAt.Equal(got.CompletedAt))

			out, err := got.OutputValue()
			require.NoError(t, err)
			assert.Equal(t, "data/images.zip", out.GetAttr("path").AsString())
			bytes, _ := out.GetAttr("bytes").AsBigFloat().Int64()
			assert.EqualValues(t, 42, bytes)

			require.NoError(t, store.Put(ctx, &Entry{StepID: "step.unzip.images"}))
			all, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "step.download.images", all[0].StepID)
			assert.Equal(t, "step.unzip.images", all[1].StepID)

			require.NoError(t, store.Delete(ctx, "step.download.images"))
			_, err = store.Get(ctx, "step.download.images")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestEntry_EmptyOutput(t *testing.T) {
	e := &Entry{StepID: "step.print.x"}
	require.NoError(t, e.SetOutput(cty.NilVal))

	val, err := e.OutputValue()
	require.NoError(t, err)
	assert.True(t, val.RawEquals(cty.EmptyObjectVal))
}
