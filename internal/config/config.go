package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config 应用配置
type Config struct {
	WorkDir string

	// MirrorDir 每门课程一个 assignments 镜像
	MirrorDir string

	// BackupDir 冲突恢复时被丢弃镜像的平铺副本
	BackupDir string

	API     APIConfig
	Git     GitConfig
	Release ReleaseConfig
	Log     LogConfig
	Backup  BackupConfig

	// 配置文件路径（凭据也保存在此文件中）
	ConfigPath string
}

// APIConfig 远程课程管理 API
type APIConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// GitConfig git 命令行相关配置
type GitConfig struct {
	ExecPath string

	// Timeout clone/pull/push 的超时
	Timeout time.Duration

	AuthorName  string
	AuthorEmail string
}

type ReleaseConfig struct {
	OverwriteStrategy string
	FanoutWorkers     int
	CommitMessage     string
}

// LogConfig 日志配置
type LogConfig struct {
	Level         string
	EnableConsole bool
	EnableFile    bool
	LogDir        string
	LogFile       string
}

// BackupConfig 恢复备份的可选 SFTP 目标
type BackupConfig struct {
	SFTPHost              string
	SFTPPort              int
	SFTPUser              string
	SFTPDir               string
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
}

const configFileName = ".computor.ini"

// Default 返回默认配置
func Default() *Config {
	return &Config{
		WorkDir:   ".",
		MirrorDir: "./mirrors",
		BackupDir: "./mirror-backups",
		API: APIConfig{
			BaseURL:     "http://localhost:8000",
			Timeout:     2 * time.Minute,
			MaxAttempts: 4,
		},
		Git: GitConfig{
			ExecPath: "git",
			Timeout:  60 * time.Second,
		},
		Release: ReleaseConfig{
			OverwriteStrategy: "skip_if_exists",
			FanoutWorkers:     8,
			CommitMessage:     "Release assignments",
		},
		Log: LogConfig{
			Level:         "INFO",
			EnableConsole: true,
			EnableFile:    false,
			LogDir:        "logs",
		},
		Backup: BackupConfig{
			SFTPPort:              22,
			SFTPDir:               "/computor-backups",
			InsecureIgnoreHostKey: false,
		},
	}
}

// SearchPaths 按优先级列出候选配置文件
func SearchPaths() []string {
	paths := []string{configFileName}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".computor", configFileName))
	}
	return paths
}

// LoadConfig 加载配置文件
func LoadConfig() (*Config, error) {
	// .env 只补充尚未设置的环境变量
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("加载 .env 失败: %w", err)
		}
	}

	var configPath string
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			configPath = p
			break
		}
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom 加载指定 ini 文件；路径为空时使用默认值加环境变量覆盖
func LoadConfigFrom(configPath string) (*Config, error) {
	config := Default()
	config.ConfigPath = configPath
	if configPath == "" {
		config.ConfigPath = SearchPaths()[0]
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			cfgFile, err := ini.Load(configPath)
			if err != nil {
				return nil, fmt.Errorf("解析配置文件 %s 失败: %w", configPath, err)
			}
			apply(config, cfgFile)
		}
	}

	applyEnv(config)

	if err := ensureDirs(config); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}
	return config, nil
}

func apply(config *Config, f *ini.File) {
	def := f.Section("default")
	setString(&config.WorkDir, def.Key("work_dir").String())
	setString(&config.MirrorDir, def.Key("mirror_dir").String())
	setString(&config.BackupDir, def.Key("backup_dir").String())

	api := f.Section("api")
	setString(&config.API.BaseURL, api.Key("base_url").String())
	setDuration(&config.API.Timeout, api.Key("timeout").String())
	setInt(&config.API.MaxAttempts, api.Key("max_attempts").String())

	git := f.Section("git")
	setString(&config.Git.ExecPath, git.Key("exec_path").String())
	setDuration(&config.Git.Timeout, git.Key("timeout").String())
	setString(&config.Git.AuthorName, git.Key("author_name").String())
	setString(&config.Git.AuthorEmail, git.Key("author_email").String())

	rel := f.Section("release")
	setString(&config.Release.OverwriteStrategy, rel.Key("overwrite_strategy").String())
	setInt(&config.Release.FanoutWorkers, rel.Key("fanout_workers").String())
	setString(&config.Release.CommitMessage, rel.Key("commit_message").String())

	lg := f.Section("log")
	setString(&config.Log.Level, lg.Key("level").String())
	setBool(&config.Log.EnableConsole, lg.Key("enable_console").String())
	setBool(&config.Log.EnableFile, lg.Key("enable_file").String())
	setString(&config.Log.LogDir, lg.Key("log_dir").String())
	setString(&config.Log.LogFile, lg.Key("log_file").String())

	bk := f.Section("backup")
	setString(&config.Backup.SFTPHost, bk.Key("sftp_host").String())
	setInt(&config.Backup.SFTPPort, bk.Key("sftp_port").String())
	setString(&config.Backup.SFTPUser, bk.Key("sftp_user").String())
	setString(&config.Backup.SFTPDir, bk.Key("sftp_dir").String())
	setString(&config.Backup.KnownHostsFile, bk.Key("known_hosts").String())
	setBool(&config.Backup.InsecureIgnoreHostKey, bk.Key("insecure_ignore_host_key").String())
}

func applyEnv(config *Config) {
	setString(&config.API.BaseURL, os.Getenv("COMPUTOR_API_URL"))
	setString(&config.MirrorDir, os.Getenv("COMPUTOR_MIRROR_DIR"))
	setString(&config.Log.Level, os.Getenv("COMPUTOR_LOG_LEVEL"))
	setDuration(&config.Git.Timeout, os.Getenv("COMPUTOR_GIT_TIMEOUT"))
}

// HasSFTPBackup 是否配置了远程备份
func (c *Config) HasSFTPBackup() bool {
	return c.Backup.SFTPHost != ""
}

func ensureDirs(config *Config) error {
	for _, dir := range []string{config.MirrorDir, config.BackupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v string) {
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// setDuration 接受 Go 时长 ("90s") 或秒数 ("90")
func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}
