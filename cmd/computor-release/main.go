package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/computor-org/computor-vscode-sub001/internal/api"
	"github.com/computor-org/computor-vscode-sub001/internal/config"
	"github.com/computor-org/computor-vscode-sub001/internal/credentials"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
	"github.com/computor-org/computor-vscode-sub001/internal/repository"
	"github.com/computor-org/computor-vscode-sub001/internal/service"
	"github.com/computor-org/computor-vscode-sub001/internal/sftpclient"
	"github.com/spf13/cobra"
)

// app 持有所有命令共享的服务实例
type app struct {
	cfg      *config.Config
	creds    credentials.CredentialManager
	api      *api.Client
	mirror   service.MirrorStore
	index    service.DeploymentIndex
	contents service.ContentService
	assigns  repository.AssignmentRepository
}

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	log, err := logger.InitLogger(&logger.Config{
		Level:         logger.ParseLevel(cfg.Log.Level),
		EnableConsole: cfg.Log.EnableConsole,
		EnableFile:    cfg.Log.EnableFile,
		LogDir:        cfg.Log.LogDir,
		LogFile:       cfg.Log.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志系统失败: %v\n", err)
		os.Exit(1)
	}
	log.Debug("配置加载成功: config=%s mirror_dir=%s backup_dir=%s", cfg.ConfigPath, cfg.MirrorDir, cfg.BackupDir)

	creds, err := credentials.NewCredentialManager(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	a := newApp(cfg, creds, log)

	rootCmd := &cobra.Command{
		Use:   "computor-release",
		Short: "同步课程作业并发布给学生",
		Long: `computor-release 为每门课程维护 assignments 仓库的本地镜像，上传缺失的示例，
检查每个作业都有对应示例，并为待发布内容触发学生模板发布。`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(a.mirrorCmd())
	rootCmd.AddCommand(a.releaseCmd())
	rootCmd.AddCommand(a.examplesCmd())
	rootCmd.AddCommand(a.contentCmd())
	rootCmd.AddCommand(a.consoleCmd())
	rootCmd.AddCommand(credentialCmd(creds))

	// 设置自动补全
	setupCompletion(rootCmd)
	setupDynamicCompletion(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, creds credentials.CredentialManager, log logger.Logger) *app {
	client := api.New(cfg.API.BaseURL, token(creds, credentials.ServiceAPI), cfg.API.Timeout)
	if cfg.API.MaxAttempts > 0 {
		client.Retry.MaxAttempts = cfg.API.MaxAttempts
	}

	// offsite 只有在配置齐全时才赋值，避免 nil 指针装进接口
	var offsite service.BackupUploader
	if cfg.HasSFTPBackup() {
		if cfg.Backup.KnownHostsFile == "" && !cfg.Backup.InsecureIgnoreHostKey {
			log.Warn("已配置 sftp_host 但未设置 known_hosts，远程备份会失败；请设置 [backup] known_hosts")
		}
		if c, err := creds.GetCredentials(credentials.ServiceSFTP); err == nil {
			offsite = sftpclient.NewUploader(sftpclient.Config{
				Host:                  cfg.Backup.SFTPHost,
				Port:                  cfg.Backup.SFTPPort,
				User:                  firstNonEmpty(c.Username, cfg.Backup.SFTPUser),
				Pass:                  c.Password,
				RemoteDir:             cfg.Backup.SFTPDir,
				KnownHostsFile:        cfg.Backup.KnownHostsFile,
				InsecureIgnoreHostKey: cfg.Backup.InsecureIgnoreHostKey,
			})
		} else {
			log.Warn("已配置 sftp_host 但没有 sftp 凭据，跳过远程备份")
		}
	}

	mirror := service.NewMirrorStore(cfg,
		repository.NewMirrorRepository(cfg),
		service.NewGitService(cfg),
		token(creds, credentials.ServiceGitLab),
		offsite,
	)

	return &app{
		cfg:      cfg,
		creds:    creds,
		api:      client,
		mirror:   mirror,
		index:    service.NewDeploymentIndex(client, cfg.Release.FanoutWorkers),
		contents: service.NewContentService(client),
		assigns:  repository.NewAssignmentRepository(),
	}
}

func (a *app) reconciler(op service.Operator) service.ExampleReconciler {
	return service.NewExampleReconciler(a.api, a.index, a.assigns, op)
}

func (a *app) orchestrator(op service.Operator) service.ReleaseOrchestrator {
	return service.NewReleaseOrchestrator(a.cfg, a.api, a.mirror, a.reconciler(op), a.index, op)
}

// token 未配置时返回空串，由调用方决定是否需要
func token(creds credentials.CredentialManager, svc credentials.Service) string {
	c, err := creds.GetCredentials(svc)
	if err != nil {
		return ""
	}
	return c.Token
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
