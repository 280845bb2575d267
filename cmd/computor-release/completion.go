package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// setupCompletion 设置自动补全命令
func setupCompletion(rootCmd *cobra.Command) {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "生成自动补全脚本",
		Long: `为指定 shell 生成自动补全脚本。

Bash:
  $ source <(computor-release completion bash)

Zsh:
  $ computor-release completion zsh > "${fpath[1]}/_computor-release"

Fish:
  $ computor-release completion fish > ~/.config/fish/completions/computor-release.fish

PowerShell:
  PS> computor-release completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			default:
				return rootCmd.GenPowerShellCompletion(os.Stdout)
			}
		},
	}
	rootCmd.AddCommand(completionCmd)
}

// setupDynamicCompletion 为 --scope 提供补全
func setupDynamicCompletion(rootCmd *cobra.Command) {
	for _, path := range [][]string{{"release", "run"}, {"release", "pending"}} {
		cmd := findCommand(rootCmd, path...)
		if cmd == nil {
			continue
		}
		_ = cmd.RegisterFlagCompletionFunc("scope", completeScope)
	}
}

func completeScope(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	options := []string{
		"all\t所有可提交的内容",
		"subtree:\t指定内容 id 之下的内容",
		"path:\t点分路径及其子树",
	}
	var out []string
	for _, o := range options {
		if strings.HasPrefix(o, toComplete) {
			out = append(out, o)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// findCommand 按路径查找子命令
func findCommand(root *cobra.Command, path ...string) *cobra.Command {
	cur := root
	for _, name := range path {
		var next *cobra.Command
		for _, c := range cur.Commands() {
			if c.Name() == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
