package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/computor-org/computor-vscode-sub001/internal/credentials"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// credentialCmd 凭据管理命令组
func credentialCmd(manager credentials.CredentialManager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "API、GitLab 和 SFTP 凭据管理",
		Long: `管理 computor-release 使用的凭据。

服务:
  - api:    课程管理 API 的 bearer token
  - gitlab: 克隆和推送作业仓库使用的个人访问令牌
  - sftp:   远程备份的用户名和密码

凭据保存在配置文件中。文件中没有时使用环境变量
(COMPUTOR_API_TOKEN、COMPUTOR_GITLAB_TOKEN、COMPUTOR_SFTP_USER、COMPUTOR_SFTP_PASS)。`,
	}

	cmd.AddCommand(listCredentialsCmd(manager))
	cmd.AddCommand(setCredentialCmd(manager))
	cmd.AddCommand(getCredentialCmd(manager))
	cmd.AddCommand(removeCredentialCmd(manager))
	return cmd
}

func listCredentialsCmd(manager credentials.CredentialManager) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出所有已配置的凭据",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			services := manager.ListServices()
			if len(services) == 0 {
				fmt.Fprintln(out, "未配置任何凭据")
				fmt.Fprintln(out, "\n提示: 使用 'computor-release credential set <service>' 配置凭据")
				return nil
			}
			for _, svc := range services {
				creds, err := manager.GetCredentials(svc)
				if err != nil {
					fmt.Fprintf(out, "  %s (%s): %v\n", svc.DisplayName(), svc, err)
					continue
				}
				printCredentials(out, svc, creds)
			}
			return nil
		},
	}
}

func setCredentialCmd(manager credentials.CredentialManager) *cobra.Command {
	var tokenFlag, userFlag, passFlag string

	cmd := &cobra.Command{
		Use:   "set <service>",
		Short: "设置服务凭据",
		Example: `  # 交互式输入（不回显）
  computor-release credential set gitlab

  computor-release credential set sftp --user backup`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: serviceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := parseService(args[0])
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			creds := &credentials.Credentials{}
			if svc == credentials.ServiceSFTP {
				if userFlag == "" {
					fmt.Fprintf(out, "%s 用户名: ", svc.DisplayName())
					line, _ := in.ReadString('\n')
					userFlag = strings.TrimSpace(line)
				}
				if passFlag == "" {
					fmt.Fprintf(out, "%s 密码: ", svc.DisplayName())
					if passFlag, err = readSecret(in); err != nil {
						return fmt.Errorf("读取密码失败: %w", err)
					}
				}
				creds.Username, creds.Password = userFlag, passFlag
			} else {
				if tokenFlag == "" {
					fmt.Fprintf(out, "%s token: ", svc.DisplayName())
					if tokenFlag, err = readSecret(in); err != nil {
						return fmt.Errorf("读取 token 失败: %w", err)
					}
				}
				creds.Token = tokenFlag
			}

			if err := manager.SetCredentials(svc, creds); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s 凭据已保存\n", svc.DisplayName())
			return nil
		},
	}

	cmd.Flags().StringVarP(&tokenFlag, "token", "t", "", "token（api、gitlab）")
	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "用户名（sftp）")
	cmd.Flags().StringVarP(&passFlag, "password", "p", "", "密码（sftp）")
	return cmd
}

func getCredentialCmd(manager credentials.CredentialManager) *cobra.Command {
	return &cobra.Command{
		Use:       "get <service>",
		Short:     "获取服务凭据（密钥已脱敏）",
		Args:      cobra.ExactArgs(1),
		ValidArgs: serviceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := parseService(args[0])
			if err != nil {
				return err
			}
			creds, err := manager.GetCredentials(svc)
			if err != nil {
				return err
			}
			printCredentials(cmd.OutOrStdout(), svc, creds)
			return nil
		},
	}
}

func removeCredentialCmd(manager credentials.CredentialManager) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:       "remove <service>",
		Short:     "删除服务凭据",
		Args:      cobra.ExactArgs(1),
		ValidArgs: serviceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := parseService(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !manager.HasCredentials(svc) {
				return fmt.Errorf("未配置 %s 的凭据", svc.DisplayName())
			}

			if !yes {
				fmt.Fprintf(out, "确认删除 %s 凭据? (yes/no): ", svc.DisplayName())
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				answer := strings.ToLower(strings.TrimSpace(line))
				if answer != "yes" && answer != "y" {
					fmt.Fprintln(out, "已取消")
					return nil
				}
			}

			if err := manager.RemoveCredentials(svc); err != nil {
				return fmt.Errorf("删除凭据失败: %w", err)
			}
			fmt.Fprintf(out, "%s 凭据已删除\n", svc.DisplayName())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "不询问确认")
	return cmd
}

func printCredentials(w io.Writer, svc credentials.Service, creds *credentials.Credentials) {
	fmt.Fprintf(w, "%s (%s):\n", svc.DisplayName(), svc)
	if svc == credentials.ServiceSFTP {
		fmt.Fprintf(w, "  用户名: %s\n", creds.Username)
		fmt.Fprintf(w, "  密码:   %s\n", credentials.Mask(creds.Password))
		return
	}
	fmt.Fprintf(w, "  Token: %s\n", credentials.Mask(creds.Token))
}

func parseService(s string) (credentials.Service, error) {
	svc := credentials.Service(strings.ToLower(strings.TrimSpace(s)))
	if !svc.IsValid() {
		return "", fmt.Errorf("未知服务 %q（可选: %s）", s, strings.Join(serviceNames(), ", "))
	}
	return svc, nil
}

func serviceNames() []string {
	return []string{
		credentials.ServiceAPI.String(),
		credentials.ServiceGitLab.String(),
		credentials.ServiceSFTP.String(),
	}
}

// readSecret 终端下不回显，管道输入时按行读取
func readSecret(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
