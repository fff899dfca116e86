// Package logger builds the zap logger used by punchclock hosts.
//
// Console output suits development, json suits log collectors. When an output
// path is set the log file is rotated by lumberjack and stdout keeps a copy.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日誌配置
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json 或 console
	OutputPath string // 日誌檔案路徑，空值時僅輸出到 stdout
	MaxSize    int    // 單檔上限（MB），預設 100
	MaxBackups int    // 保留的舊檔數量，預設 10
	MaxAge     int    // 舊檔保留天數，預設 30
	Compress   bool
}

func (c *Config) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.MaxSize == 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 10
	}
	if c.MaxAge == 0 {
		c.MaxAge = 30
	}
}

// New 依配置建立 Logger
func New(cfg Config) (*zap.Logger, error) {
	cfg.setDefaults()

	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var sinks []zapcore.WriteSyncer
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}))
	}
	sinks = append(sinks, zapcore.AddSync(os.Stdout))

	return build(cfg.Format, level, zapcore.NewMultiWriteSyncer(sinks...)), nil
}

// NewWriter builds a logger writing to w, mostly for tests and embedding.
func NewWriter(w io.Writer, format string, level zapcore.Level) *zap.Logger {
	return build(format, level, zapcore.AddSync(w))
}

func build(format string, level zapcore.Level, sink zapcore.WriteSyncer) *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}
