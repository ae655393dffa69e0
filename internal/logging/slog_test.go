package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(&buf, "debug", "text"), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		key   string
		val   string
	}{
		{"DEBUG", "dbg", "a", "1"},
		{"INFO", "inf", "b", "2"},
		{"WARN", "wrn", "c", "3"},
		{"ERROR", "err", "d", "4"},
	}

	for _, tc := range tests {
		assert.Contains(t, out, "level="+tc.level)
		assert.Contains(t, out, "msg="+tc.msg)
		assert.Contains(t, out, tc.key+"="+tc.val)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("module", "navigator", "op", "123").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	for _, s := range []string{"level=INFO", "msg=hello", "module=navigator", "op=123", "k=v"} {
		assert.Contains(t, out, s)
	}
}

func TestNew_JSONAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown", "attempt", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"attempt":2`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestSlogLogger_CredentialsAreRedacted(t *testing.T) {
	log, buf := newTestLogger(t)
	creds := invoice.Credentials{Email: "ops@example.com", Password: "hunter2", TOTPSecret: "JBSWY3DPEHPK3PXP"}

	log.Info(context.Background(), "login", "credentials", creds)

	out := buf.String()
	require.NotContains(t, out, "hunter2")
	require.NotContains(t, out, "JBSWY3DPEHPK3PXP")
}

func TestNopLogger_DoesNotPanic(t *testing.T) {
	var l Logger = NopLogger{}
	ctx := context.TODO()
	l.With("a", 1).Info(ctx, "x")
	l.Debug(ctx, "x")
	l.Warn(ctx, "x")
	l.Error(ctx, "x")
}
