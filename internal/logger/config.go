package logger

// Config 日志配置
type Config struct {
	// Level 日志级别：DEBUG, INFO, WARN, ERROR
	Level LogLevel

	EnableConsole bool
	EnableFile    bool
	LogDir        string

	// LogFile 为空时使用 computor-release-YYYY-MM-DD.log
	LogFile string
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:         INFO,
		EnableConsole: true,
		EnableFile:    false,
		LogDir:        "logs",
	}
}
