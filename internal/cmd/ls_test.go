package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/s3glob/pkg/enumerate"
	"github.com/quayside/s3glob/pkg/output"
	"github.com/quayside/s3glob/pkg/provider"
)

func TestItemKey(t *testing.T) {
	assert.Equal(t, "logs/", itemKey(enumerate.Item{Kind: enumerate.PrefixKind, Prefix: "logs/"}))
	assert.Equal(t, "logs/a.txt", itemKey(enumerate.Item{
		Kind:   enumerate.ObjectKind,
		Object: provider.ObjectSummary{Key: "logs/a.txt"},
	}))
}

func TestEmitItem(t *testing.T) {
	var buf bytes.Buffer
	w := output.NewJSONLWriter(&buf)
	ctx := context.Background()

	require.NoError(t, emitItem(ctx, w, enumerate.Item{
		Kind:   enumerate.ObjectKind,
		Object: provider.ObjectSummary{Key: "data/a.csv", Size: 10},
	}, "bucket"))
	require.NoError(t, emitItem(ctx, w, enumerate.Item{
		Kind:   enumerate.PrefixKind,
		Prefix: "data/sub/",
	}, "bucket"))

	out := buf.String()
	assert.Contains(t, out, `"data/a.csv"`)
	assert.Contains(t, out, `"data/sub/"`)
}

func TestEmitSorted_OrdersByKey(t *testing.T) {
	var buf bytes.Buffer
	w := output.NewJSONLWriter(&buf)
	ctx := context.Background()

	items := make(chan enumerate.Item, 3)
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "b.txt"}}
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "a.txt"}}
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "c.txt"}}
	close(items)

	matched, err := emitSorted(ctx, w, items, "bucket")
	require.NoError(t, err)
	assert.Equal(t, int64(3), matched)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.Contains(lines[0], `"a.txt"`))
	assert.True(t, strings.Contains(lines[1], `"b.txt"`))
	assert.True(t, strings.Contains(lines[2], `"c.txt"`))
}

func TestEmitStreaming_PreservesArrivalOrder(t *testing.T) {
	var buf bytes.Buffer
	w := output.NewJSONLWriter(&buf)
	ctx := context.Background()

	items := make(chan enumerate.Item, 2)
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "z.txt"}}
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "a.txt"}}
	close(items)

	matched, err := emitStreaming(ctx, w, items, "bucket")
	require.NoError(t, err)
	assert.Equal(t, int64(2), matched)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[0], `"z.txt"`))
	assert.True(t, strings.Contains(lines[1], `"a.txt"`))
}

func TestNewWriter_FormatSelection(t *testing.T) {
	jsonWriter, err := newWriter(nil, "bucket", "json")
	require.NoError(t, err)
	_, ok := jsonWriter.(*output.JSONLWriter)
	assert.True(t, ok)

	textWriter, err := newWriter(nil, "bucket", "")
	require.NoError(t, err)
	_, ok = textWriter.(*output.TextWriter)
	assert.True(t, ok)

	_, err = newWriter(nil, "bucket", "{not_a_field}")
	assert.Error(t, err)
}
