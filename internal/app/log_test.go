package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		session string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			session: "s-123",
			level:   slog.LevelInfo,
			message: "draft saved",
			want:    "2024-06-15T14:30:45Z\tINFO\ts-123\tdraft saved\n",
		},
		{
			name:    "debug level",
			session: "s-456",
			level:   slog.LevelDebug,
			message: "job enqueued",
			want:    "2024-06-15T14:30:45Z\tDEBUG\ts-456\tjob enqueued\n",
		},
		{
			name:    "with record attrs",
			session: "s-789",
			level:   slog.LevelWarn,
			message: "sync job failed, backing off",
			attrs:   []slog.Attr{slog.String("id", "UPSERT_STEP:T-1:a"), slog.Int("attempts", 2)},
			want:    "2024-06-15T14:30:45Z\tWARN\ts-789\tsync job failed, backing off\tid=UPSERT_STEP:T-1:a\tattempts=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &lineHandler{w: &buf, session: tt.session, level: slog.LevelDebug}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			require.NoError(t, h.Handle(context.Background(), r))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestLineHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &lineHandler{w: &buf, session: "s-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "queue")}).(*lineHandler)
	assert.Len(t, h.attrs, 1, "original handler is not modified")
	assert.Len(t, h2.attrs, 2)

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "drain", 0)
	r.AddAttrs(slog.String("key", "abc"))
	require.NoError(t, h2.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), "component=queue")
	assert.Contains(t, buf.String(), "key=abc")
}

func TestLineHandler_Enabled(t *testing.T) {
	h := &lineHandler{level: slog.LevelInfo}
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		assert.True(t, h.Enabled(context.Background(), level), "level %v", level)
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-session", slog.LevelInfo, nil)
	require.NoError(t, err)
	defer f.Close()

	(&slogAdapter{l: logger}).Info("hello", "k", "v")
	(&slogAdapter{l: logger}).Debug("hidden")

	data, err := os.ReadFile(filepath.Join(dir, "wfs.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\tINFO\ttest-session\thello\tk=v\n")
	assert.NotContains(t, string(data), "hidden")
}
