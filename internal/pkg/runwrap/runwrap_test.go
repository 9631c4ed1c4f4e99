package runwrap

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogged(t *testing.T) {
	tests := []struct {
		name    string
		level   slog.Level
		unit    Unit
		attrs   []slog.Attr
		want    []string
		wantOut bool
	}{
		{
			name:    "job at info",
			level:   slog.LevelInfo,
			unit:    Unit{Kind: "Job", Key: "job_name", Name: "AssetAuditJob"},
			want:    []string{"Job execution started", "Job execution finished", "job_name=AssetAuditJob", "execution_id=", "duration="},
			wantOut: true,
		},
		{
			name:    "file with finish attributes",
			level:   slog.LevelInfo,
			unit:    Unit{Kind: "File", Key: "file", Name: "assets/pics/a.webp"},
			attrs:   []slog.Attr{slog.String("verdict", "PASS")},
			want:    []string{"File execution finished", "file=assets/pics/a.webp", "verdict=PASS"},
			wantOut: true,
		},
		{
			name:  "below handler level",
			level: slog.LevelDebug,
			unit:  Unit{Kind: "File", Key: "file", Name: "a.webp"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			ran := false
			Logged(logger, tt.level, tt.unit, func(l *slog.Logger) []slog.Attr {
				ran = true
				require.NotNil(t, l)
				return tt.attrs
			})
			assert.True(t, ran)
			if !tt.wantOut {
				assert.Empty(t, buf.String())
				return
			}
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestRecovered(t *testing.T) {
	tests := []struct {
		name    string
		fn      func()
		wantErr bool
	}{
		{name: "clean run", fn: func() {}},
		{name: "panic", fn: func() { panic("boom") }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			var err error
			require.NotPanics(t, func() { err = Recovered(logger, "File", tt.fn) })
			if !tt.wantErr {
				assert.NoError(t, err)
				assert.Empty(t, buf.String())
				return
			}
			assert.ErrorIs(t, err, ErrPanicked)
			assert.Contains(t, err.Error(), "boom")
			assert.Contains(t, buf.String(), "File panicked")
			assert.Contains(t, buf.String(), "stack_trace=")
		})
	}
}
