package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/ini.v1"
)

// Service 需要凭据的外部服务
type Service string

const (
	ServiceAPI    Service = "api"
	ServiceGitLab Service = "gitlab"
	ServiceSFTP   Service = "sftp"
)

var allServices = []Service{ServiceAPI, ServiceGitLab, ServiceSFTP}

// Credentials 外部服务凭据
// api/gitlab 使用 Token，sftp 使用 Username/Password
type Credentials struct {
	Token    string
	Username string
	Password string
}

func (c *Credentials) usable(service Service) bool {
	if c == nil {
		return false
	}
	if service == ServiceSFTP {
		return c.Username != "" && c.Password != ""
	}
	return c.Token != ""
}

// CredentialManager 凭据管理器接口
type CredentialManager interface {
	GetCredentials(service Service) (*Credentials, error)
	SetCredentials(service Service, creds *Credentials) error
	HasCredentials(service Service) bool
	ListServices() []Service
	RemoveCredentials(service Service) error
}

type credentialManager struct {
	configPath string
	mu         sync.RWMutex
	creds      map[Service]*Credentials
}

// NewCredentialManager 创建凭据管理器实例
// 配置文件不存在时只从环境变量读取凭据
func NewCredentialManager(configPath string) (CredentialManager, error) {
	m := &credentialManager{
		configPath: configPath,
		creds:      make(map[Service]*Credentials),
	}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("加载凭据失败: %w", err)
	}
	return m, nil
}

func sectionName(service Service) string {
	return "credential." + string(service)
}

func (m *credentialManager) load() error {
	if m.configPath == "" {
		return nil
	}
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		return nil
	}

	cfg, err := ini.Load(m.configPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, service := range allServices {
		section := cfg.Section(sectionName(service))
		creds := &Credentials{
			Token:    section.Key("token").String(),
			Username: section.Key("username").String(),
			Password: section.Key("password").String(),
		}
		if creds.usable(service) {
			m.creds[service] = creds
		}
	}
	return nil
}

func envCredentials(service Service) *Credentials {
	switch service {
	case ServiceAPI:
		return &Credentials{Token: os.Getenv("COMPUTOR_API_TOKEN")}
	case ServiceGitLab:
		return &Credentials{Token: os.Getenv("COMPUTOR_GITLAB_TOKEN")}
	case ServiceSFTP:
		return &Credentials{Username: os.Getenv("COMPUTOR_SFTP_USER"), Password: os.Getenv("COMPUTOR_SFTP_PASS")}
	}
	return nil
}

// GetCredentials 获取凭据（文件优先，其次环境变量）
func (m *credentialManager) GetCredentials(service Service) (*Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if creds, ok := m.creds[service]; ok {
		return creds, nil
	}
	if creds := envCredentials(service); creds.usable(service) {
		return creds, nil
	}
	return nil, fmt.Errorf("未配置 %s 的凭据", service)
}

// SetCredentials 设置并保存凭据
func (m *credentialManager) SetCredentials(service Service, creds *Credentials) error {
	if !service.IsValid() {
		return fmt.Errorf("未知服务 %q", service)
	}
	if !creds.usable(service) {
		return fmt.Errorf("%s 的凭据不完整", service)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[service] = creds
	return m.save()
}

func (m *credentialManager) HasCredentials(service Service) bool {
	_, err := m.GetCredentials(service)
	return err == nil
}

// ListServices 列出所有已配置凭据的服务
func (m *credentialManager) ListServices() []Service {
	var out []Service
	for _, s := range allServices {
		if m.HasCredentials(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RemoveCredentials 删除凭据
func (m *credentialManager) RemoveCredentials(service Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.creds, service)
	return m.save()
}

// save 保存凭据到配置文件，保留文件中的其他配置节
func (m *credentialManager) save() error {
	if m.configPath == "" {
		m.configPath = ".computor.ini"
	}

	dir := filepath.Dir(m.configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	cfg := ini.Empty()
	if _, err := os.Stat(m.configPath); err == nil {
		if loaded, err := ini.Load(m.configPath); err == nil {
			cfg = loaded
		}
	}

	for _, service := range allServices {
		name := sectionName(service)
		creds, ok := m.creds[service]
		if !ok {
			cfg.DeleteSection(name)
			continue
		}
		section := cfg.Section(name)
		if service == ServiceSFTP {
			section.Key("username").SetValue(creds.Username)
			section.Key("password").SetValue(creds.Password)
		} else {
			section.Key("token").SetValue(creds.Token)
		}
	}

	if err := cfg.SaveTo(m.configPath); err != nil {
		return err
	}
	return os.Chmod(m.configPath, 0600)
}
