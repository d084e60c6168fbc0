package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syllabus-search/offline-index/pkg/logger"
)

func TestChildSpansShareTrace(t *testing.T) {
	ctx, root := Start(context.Background(), "sync")
	require.Len(t, root.TraceID, 16)

	cctx, child := Start(ctx, "download")
	child.SetAttr("attempts", 2)
	child.End(errors.New("boom"))
	_, grandchild := Start(cctx, "read")
	grandchild.End(nil)
	root.End(nil)

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.TraceID, grandchild.TraceID)
	require.Len(t, root.Children(), 1)
	assert.Same(t, child, root.Children()[0])
	assert.Same(t, grandchild, child.Children()[0])
	assert.EqualError(t, child.Err(), "boom")
	assert.Equal(t, 2, child.Attr("attempts"))
	assert.Same(t, root, FromContext(ctx))
}

func TestRootUsesRequestID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-42")
	_, span := Start(ctx, "sync")
	assert.Equal(t, "req-42", span.TraceID)
}

func TestEndOnlyOnce(t *testing.T) {
	_, span := Start(context.Background(), "x")
	span.End(nil)
	d := span.Duration()
	span.End(errors.New("late"))
	assert.NoError(t, span.Err())
	assert.Equal(t, d, span.Duration())
}

func TestNilSpanSetAttr(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() { span.SetAttr("k", "v") })
	assert.Nil(t, FromContext(context.Background()))
}

func TestLogWritesTree(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, "debug", "text")

	ctx, root := Start(context.Background(), "sync")
	_, child := Start(ctx, "build")
	child.SetAttr("entries", 3)
	child.End(nil)
	root.End(nil)
	root.Log(l)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=sync")
	assert.Contains(t, lines[0], "depth=0")
	assert.Contains(t, lines[1], "span=build")
	assert.Contains(t, lines[1], "entries=3")
}
