package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// writerCloser holds a reference to closable writers for Sync()
var (
	writerCloser   io.Closer
	writerCloserMu sync.Mutex
)

// Logger wraps logrus.Entry to provide structured logging with context support.
type Logger struct {
	*logrus.Entry
}

// Config holds logger configuration.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // output destination; nil means stdout/file per env
	ServiceName string    // service name for log tagging

	// File output and rotation, used outside local environments.
	Environment string // local, dev, prod
	LogFile     string
	LogFileOnly bool
	MaxSize     int // MB before rotation
	MaxBackups  int
	MaxAge      int // days
	Compress    bool
}

// LoadFromEnv loads logger configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: getEnv("SERVICE_NAME", "audigest"),
		Environment: getEnv("APP_ENV", "local"),
		LogFile:     getEnv("LOG_FILE", "/var/log/audigest/app.log"),
		LogFileOnly: getEnvBool("LOG_FILE_ONLY", false),
		MaxSize:     getEnvInt("LOG_MAX_SIZE", 100),
		MaxBackups:  getEnvInt("LOG_MAX_BACKUPS", 7),
		MaxAge:      getEnvInt("LOG_MAX_AGE", 30),
		Compress:    getEnvBool("LOG_COMPRESS", true),
	}
}

// New creates a new Logger with the given configuration.
// Parameters:
//   - cfg: logger configuration; nil loads from environment.
// Returns:
//   - *Logger: initialized logger instance.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = LoadFromEnv()
	}

	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)

	if strings.ToLower(cfg.Format) == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: callerPrettyfier,
		})
	}

	log.SetOutput(buildOutput(cfg))

	return &Logger{Entry: log.WithField("service", cfg.ServiceName)}
}

// buildOutput selects stdout, rotated file, or both based on the environment.
func buildOutput(cfg *Config) io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}

	var writers []io.Writer
	if cfg.Environment == "local" || !cfg.LogFileOnly {
		writers = append(writers, os.Stdout)
	}
	if cfg.Environment != "local" && cfg.LogFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, fileWriter)

		writerCloserMu.Lock()
		writerCloser = fileWriter
		writerCloserMu.Unlock()
	}
	if len(writers) == 0 {
		return os.Stdout
	}
	return io.MultiWriter(writers...)
}

// Sync flushes pending logs and closes file handles. Call before exit.
func Sync() error {
	writerCloserMu.Lock()
	defer writerCloserMu.Unlock()

	if writerCloser != nil {
		return writerCloser.Close()
	}
	return nil
}

// WithFields returns a new Logger with additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a new Logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a new Logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// callerPrettyfier simplifies caller information to function name and file:line
func callerPrettyfier(frame *runtime.Frame) (function string, file string) {
	funcName := frame.Function
	if idx := strings.LastIndex(funcName, "/"); idx != -1 {
		funcName = funcName[idx+1:]
	}
	return funcName, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// ============================================
// Context Log Functions
// ============================================

// CtxDebug logs a message at Debug level with context fields.
func CtxDebug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Debugf(format, args...)
}

// CtxInfo logs a message at Info level with context fields.
func CtxInfo(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Infof(format, args...)
}

// CtxWarn logs a message at Warn level with context fields.
func CtxWarn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Warnf(format, args...)
}

// CtxError logs a message at Error level with context fields.
func CtxError(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Errorf(format, args...)
}
