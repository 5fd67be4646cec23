package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	l, _ := observed()
	gl := NewGormLogger(l, gormlogger.Info, WithSlowThreshold(time.Second), WithIgnoreRecordNotFoundError(false))

	changed, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
	assert.Equal(t, time.Second, changed.slowThreshold)
	assert.False(t, changed.ignoreRecordNotFoundError)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		begin     time.Time
		err       error
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{"error", gormlogger.Error, time.Now(), errors.New("boom"), zapcore.ErrorLevel, "SQL error"},
		{"slow", gormlogger.Warn, time.Now().Add(-time.Second), nil, zapcore.WarnLevel, "Slow SQL"},
		{"normal at info", gormlogger.Info, time.Now(), nil, zapcore.DebugLevel, "SQL query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, logs := observed()
			gl := NewGormLogger(l, tt.level)
			ctx := WithRequestID(context.Background(), "req-9")

			gl.Trace(ctx, tt.begin, sqlFn(`UPDATE "blood_components" SET status = 'RESERVED'`, 1), tt.err)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, "req-9", entry.ContextMap()["request_id"])
		})
	}

	t.Run("record not found is ignored", func(t *testing.T) {
		l, logs := observed()
		NewGormLogger(l, gormlogger.Error).Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, logs.Len())
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		l, logs := observed()
		NewGormLogger(l, gormlogger.Silent).Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 0), errors.New("x"))
		assert.Zero(t, logs.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
