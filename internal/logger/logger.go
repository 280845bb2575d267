package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// Logger 日志接口
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

type loggerImpl struct {
	mu    sync.RWMutex
	level LogLevel
	zl    zerolog.Logger
}

var (
	defaultMu     sync.Mutex
	defaultLogger Logger
)

// InitLogger 初始化日志系统并设为默认实例
func InitLogger(config *Config) (Logger, error) {
	var writers []io.Writer

	if config.EnableConsole {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02 15:04:05.000",
		})
	}

	if config.EnableFile {
		logDir := config.LogDir
		if logDir == "" {
			logDir = "logs"
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		logFile := filepath.Join(logDir, fmt.Sprintf("computor-release-%s.log", time.Now().Format("2006-01-02")))
		if config.LogFile != "" {
			logFile = filepath.Join(logDir, config.LogFile)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		writers = append(writers, file)
	}

	l := New(zerolog.MultiLevelWriter(writers...), config.Level)

	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	return l, nil
}

// New 创建向 w 写 JSON 行的日志实例
func New(w io.Writer, level LogLevel) Logger {
	if w == nil {
		w = io.Discard
	}
	return &loggerImpl{
		level: level,
		zl:    zerolog.New(w).With().Timestamp().Str("app", "computor-release").Logger(),
	}
}

// GetLogger 获取默认日志实例
func GetLogger() Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}, INFO)
	}
	return defaultLogger
}

// SetDefault 替换默认日志实例，测试中用于静音输出
func SetDefault(l Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

func (l *loggerImpl) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *loggerImpl) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *loggerImpl) log(level LogLevel, format string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
	} else {
		file = filepath.Base(file)
	}

	l.zl.WithLevel(toZerolog(level)).
		Str("caller", fmt.Sprintf("%s:%d", file, line)).
		Msgf(format, args...)
}

func (l *loggerImpl) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *loggerImpl) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *loggerImpl) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *loggerImpl) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel 解析日志级别字符串
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG", "TRACE":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) String() string {
	return levelNames[l]
}
