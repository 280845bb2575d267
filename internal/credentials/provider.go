package credentials

func (s Service) String() string {
	return string(s)
}

// DisplayName 返回服务的显示名称
func (s Service) DisplayName() string {
	switch s {
	case ServiceAPI:
		return "Computor API"
	case ServiceGitLab:
		return "GitLab"
	case ServiceSFTP:
		return "SFTP 备份"
	}
	return string(s)
}

// IsValid 检查服务名是否有效
func (s Service) IsValid() bool {
	for _, v := range allServices {
		if s == v {
			return true
		}
	}
	return false
}

// Mask 只保留密钥首尾各四个字符
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
