package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/service"
	"github.com/spf13/cobra"
)

// console 单门课程的交互式控制台
type console struct {
	app    *app
	ctx    context.Context
	out    io.Writer
	course *domain.Course

	// 上次读取的可提交内容，用于补全 content id
	submittable []domain.CourseContent
}

func (a *app) consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console <course-id>",
		Short: "绑定单门课程的交互式控制台",
		Long: `打开单门课程的交互式控制台，支持 Tab 补全。

命令:
  status                               镜像路径、HEAD 和工作区状态
  pull                                 克隆或快进镜像
  push                                 提交并推送镜像修改
  contents                             列出可提交内容及其状态
  pending [scope]                      相对镜像 HEAD 的待发布内容
  validate                             发布前校验
  assign <content-id> <example> [tag]  分配示例版本
  unassign <content-id>                取消分配
  release [scope] [--dry-run]          执行发布
  exit / quit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			course, err := a.course(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c := &console{app: a, ctx: cmd.Context(), out: cmd.OutOrStdout(), course: course}
			return c.run()
		},
	}
}

func (c *console) run() error {
	fmt.Fprintf(c.out, "课程 %s (%s)，输入 help 查看命令\n", c.course.Title, c.course.ID)
	c.refresh()

	p := prompt.New(
		c.executor,
		c.completer,
		prompt.OptionPrefix(c.course.ID+"> "),
		prompt.OptionTitle("computor-release console"),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionSuggestionTextColor(prompt.White),
		prompt.OptionSelectedSuggestionBGColor(prompt.Blue),
		prompt.OptionSelectedSuggestionTextColor(prompt.White),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			s := strings.TrimSpace(in)
			return breakline && (s == "exit" || s == "quit")
		}),
	)

	// Run 阻塞直到退出
	p.Run()
	return nil
}

func (c *console) refresh() {
	snap, err := c.app.index.LoadSnapshot(c.ctx, c.course.ID)
	if err != nil {
		fmt.Fprintf(c.out, "警告: 无法加载课程内容: %v\n", err)
		return
	}
	c.submittable = snap.Submittable
}

func (c *console) executor(in string) {
	line := strings.TrimSpace(in)
	if line == "" || line == "exit" || line == "quit" {
		return
	}
	if err := c.handle(strings.Fields(line)); err != nil {
		fmt.Fprintf(c.out, "错误: %v\n", err)
	}
}

func (c *console) handle(parts []string) error {
	a := c.app
	switch parts[0] {
	case "help":
		fmt.Fprintln(c.out, "status | pull | push | contents | pending [scope] | validate | assign <id> <example> [tag] | unassign <id> | release [scope] [--dry-run] | exit")
		return nil

	case "status":
		st, err := a.mirror.Status(c.ctx, c.course)
		if err != nil {
			return err
		}
		printStatus(c.out, st)
		return nil

	case "pull":
		h, err := a.mirror.EnsureMirror(c.ctx, c.course)
		if err != nil {
			return err
		}
		printHandle(c.out, h)
		return nil

	case "push":
		h, err := a.mirror.CommitAndPush(c.ctx, c.course)
		if err != nil {
			return err
		}
		printHandle(c.out, h)
		return nil

	case "contents":
		c.refresh()
		printContents(c.out, "Submittable", c.submittable)
		return nil

	case "pending":
		scope, err := domain.ParseScope(strings.Join(parts[1:], " "))
		if err != nil {
			return err
		}
		head, err := a.mirror.HeadOf(c.ctx, c.course)
		if err != nil {
			return err
		}
		set, err := a.index.PendingRelease(c.ctx, c.course.ID, scope, head)
		if err != nil {
			return err
		}
		printContents(c.out, "Pending", set.Items)
		printContents(c.out, "未分配示例（不可发布）", set.Unassigned)
		printContents(c.out, "部署状态无法识别（不可发布）", set.Unknown)
		return nil

	case "validate":
		res, err := a.index.ValidateForRelease(c.ctx, c.course.ID)
		if err != nil {
			return err
		}
		if !res.Blocking() {
			fmt.Fprintf(c.out, "已检查 %d 个作业，可以发布\n", res.Checked)
			return nil
		}
		printIssues(c.out, res.Issues)
		return nil

	case "assign":
		if len(parts) < 3 {
			return fmt.Errorf("用法: assign <content-id> <example> [tag]")
		}
		tag := ""
		if len(parts) > 3 {
			tag = parts[3]
		}
		content, err := a.contents.Assign(c.ctx, parts[1], parts[2], tag)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: %s -> %s\n", content.DisplayName(), content.ExampleIdentifier(), content.Status())
		c.refresh()
		return nil

	case "unassign":
		if len(parts) != 2 {
			return fmt.Errorf("用法: unassign <content-id>")
		}
		content, err := a.contents.Unassign(c.ctx, parts[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: %s\n", content.DisplayName(), content.Status())
		c.refresh()
		return nil

	case "release":
		opts := service.ReleaseOptions{}
		var scopeArgs []string
		for _, p := range parts[1:] {
			if p == "--dry-run" {
				opts.DryRun = true
				continue
			}
			scopeArgs = append(scopeArgs, p)
		}
		scope, err := domain.ParseScope(strings.Join(scopeArgs, " "))
		if err != nil {
			return err
		}
		opts.Scope = scope

		outcome, err := a.orchestrator(newTerminalOperator(c.out, false, "")).RunRelease(c.ctx, c.course.ID, opts)
		if outcome != nil {
			printOutcome(c.out, outcome)
		}
		c.refresh()
		return err
	}
	return fmt.Errorf("未知命令 %q，输入 help 查看", parts[0])
}

func (c *console) completer(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	parts := strings.Fields(before)
	current := d.GetWordBeforeCursor()

	// 正在输入第一个词
	if len(parts) == 0 || (len(parts) == 1 && !strings.HasSuffix(before, " ")) {
		return prompt.FilterHasPrefix(topLevelSuggestions, current, true)
	}

	argIndex := len(parts) - 1
	if strings.HasSuffix(before, " ") {
		argIndex = len(parts)
	}

	switch parts[0] {
	case "assign", "unassign":
		if argIndex == 1 {
			return prompt.FilterHasPrefix(c.contentSuggestions(), current, true)
		}
	case "pending", "release":
		s := []prompt.Suggest{
			{Text: "all", Description: "整门课程"},
			{Text: "subtree:", Description: "指定内容 id 之下"},
			{Text: "path:", Description: "点分路径及其子树"},
		}
		if parts[0] == "release" {
			s = append(s, prompt.Suggest{Text: "--dry-run", Description: "计算待发布内容后停止"})
		}
		return prompt.FilterHasPrefix(s, current, true)
	}
	return nil
}

var topLevelSuggestions = []prompt.Suggest{
	{Text: "help", Description: "显示命令"},
	{Text: "status", Description: "镜像状态"},
	{Text: "pull", Description: "克隆或快进镜像"},
	{Text: "push", Description: "提交并推送镜像修改"},
	{Text: "contents", Description: "列出可提交内容"},
	{Text: "pending", Description: "相对镜像 HEAD 的待发布内容"},
	{Text: "validate", Description: "发布前校验"},
	{Text: "assign", Description: "分配示例"},
	{Text: "unassign", Description: "取消分配"},
	{Text: "release", Description: "执行发布"},
	{Text: "exit", Description: "退出控制台"},
}

func (c *console) contentSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(c.submittable))
	for _, item := range c.submittable {
		out = append(out, prompt.Suggest{
			Text:        item.ID,
			Description: fmt.Sprintf("%s [%s]", item.Path, item.Status()),
		})
	}
	return out
}
