package sftpclient

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Config struct {
	Host                  string
	Port                  int
	User                  string
	Pass                  string
	RemoteDir             string
	InsecureIgnoreHostKey bool
	// 未设置 InsecureIgnoreHostKey 时必填
	KnownHostsFile string
}

func (c Config) validate() error {
	if c.Host == "" || c.User == "" || c.Pass == "" {
		return fmt.Errorf("sftp: 缺少 host / user / password")
	}
	if !c.InsecureIgnoreHostKey && c.KnownHostsFile == "" {
		return fmt.Errorf("sftp: 未关闭主机密钥校验时必须提供 known_hosts 文件")
	}
	return nil
}

// Uploader 将恢复备份上传到 SFTP 服务器
type Uploader struct {
	cfg Config
}

func NewUploader(cfg Config) *Uploader {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	return &Uploader{cfg: cfg}
}

// UploadDir 将 localDir 复制到 RemoteDir/remoteName
func (u *Uploader) UploadDir(ctx context.Context, localDir, remoteName string) error {
	cfg := u.cfg
	if err := cfg.validate(); err != nil {
		return err
	}

	client, closeFn, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return uploadTree(ctx, client, localDir, path.Join(cfg.RemoteDir, remoteName))
}

// uploadTree 把本地目录递归写入 base，只处理目录与普通文件
func uploadTree(ctx context.Context, client *sftp.Client, localDir, base string) error {
	if err := client.MkdirAll(base); err != nil {
		return fmt.Errorf("sftp: 创建目录 %s 失败: %w", base, err)
	}

	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("sftp: 上传已取消: %w", ctxErr)
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		remote := path.Join(base, filepath.ToSlash(rel))

		if d.IsDir() {
			if err := client.MkdirAll(remote); err != nil {
				return fmt.Errorf("sftp: 创建目录 %s 失败: %w", remote, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return uploadFile(client, p, remote)
	})
}

func uploadFile(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("sftp: 打开本地文件失败: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: 创建远程文件 %s 失败: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("sftp: 上传 %s 失败: %w", remotePath, err)
	}
	return nil
}

func dial(ctx context.Context, cfg Config) (*sftp.Client, func(), error) {
	var cb ssh.HostKeyCallback
	if cfg.InsecureIgnoreHostKey {
		cb = ssh.InsecureIgnoreHostKey()
	} else {
		known, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("sftp: 加载 known_hosts 失败: %w", err)
		}
		cb = known
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: cb,
		Timeout:         20 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// ctx 控制拨号超时与取消
	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, nil, fmt.Errorf("sftp: 连接已取消: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, nil, fmt.Errorf("sftp: 连接失败: %w", r.err)
		}
		sshClient = r.client
	}

	sftpCli, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("sftp: 创建客户端失败: %w", err)
	}
	return sftpCli, func() {
		sftpCli.Close()
		sshClient.Close()
	}, nil
}
