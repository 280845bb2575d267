package main

import (
	"fmt"
	"io"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/service"
	"github.com/spf13/cobra"
)

// releaseCmd 发布命令组
func (a *app) releaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "查看并执行作业发布",
	}
	cmd.AddCommand(a.releasePendingCmd())
	cmd.AddCommand(a.releaseValidateCmd())
	cmd.AddCommand(a.releaseRunCmd())
	return cmd
}

func (a *app) releasePendingCmd() *cobra.Command {
	var scopeFlag string

	cmd := &cobra.Command{
		Use:   "pending <course-id>",
		Short: "列出相对当前镜像 HEAD 将被发布的作业",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scope, err := domain.ParseScope(scopeFlag)
			if err != nil {
				return err
			}
			course, err := a.course(ctx, args[0])
			if err != nil {
				return err
			}
			head, err := a.mirror.HeadOf(ctx, course)
			if err != nil {
				return err
			}
			set, err := a.index.PendingRelease(ctx, course.ID, scope, head)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "镜像 HEAD %s，范围 %s\n", head, scope)
			printContents(out, "Pending", set.Items)
			printContents(out, "未分配示例（不可发布）", set.Unassigned)
			printContents(out, "部署状态无法识别（不可发布）", set.Unknown)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", "all", "all、subtree:<content-id> 或 path:<dot.path>")
	return cmd
}

func (a *app) releaseValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <course-id>",
		Short: "检查每个作业都有示例，不做任何修改",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.index.ValidateForRelease(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Blocking() {
				fmt.Fprintf(out, "已检查 %d 个作业，可以发布\n", res.Checked)
				return nil
			}
			printIssues(out, res.Issues)
			return &service.ValidationBlockedError{Issues: res.Issues}
		},
	}
}

func (a *app) releaseRunCmd() *cobra.Command {
	var (
		scopeFlag     string
		dryRun        bool
		yes           bool
		repository    string
		skipReconcile bool
	)

	cmd := &cobra.Command{
		Use:   "run <course-id>",
		Short: "准备镜像、上传缺失示例并发布待发布作业",
		Long: `执行完整发布:

  1. 快进（或克隆）assignments 镜像并推送本地修改
  2. 上传示例目录中缺失的本地示例，并自动分配未分配的内容
  3. 校验每个作业都有示例
  4. 计算待发布内容并请求确认
  5. 同步作业并发布学生模板`,
		Example: `  # 预览，不做任何修改
  computor-release release run 6f1c2a --dry-run

  # 只发布 week3 下的作业，不交互
  computor-release release run 6f1c2a --scope path:week3 --yes --repository examples`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := domain.ParseScope(scopeFlag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			op := newTerminalOperator(out, yes, repository)

			outcome, err := a.orchestrator(op).RunRelease(cmd.Context(), args[0], service.ReleaseOptions{
				Scope:         scope,
				DryRun:        dryRun,
				SkipReconcile: skipReconcile,
			})
			if outcome != nil {
				printOutcome(out, outcome)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "all", "all、subtree:<content-id> 或 path:<dot.path>")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "计算待发布内容后停止")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "对每个提示使用默认回答")
	cmd.Flags().StringVar(&repository, "repository", "", "上传使用的示例仓库 id 或名称")
	cmd.Flags().BoolVar(&skipReconcile, "skip-reconcile", false, "跳过示例上传和自动分配")
	return cmd
}

func printContents(w io.Writer, heading string, items []domain.CourseContent) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", heading, len(items))
	for _, c := range items {
		fmt.Fprintf(w, "  - %-40s %-30s [%s]\n", c.DisplayName(), c.Path, c.Status())
	}
}

func printIssues(w io.Writer, issues []domain.ValidationIssue) {
	fmt.Fprintf(w, "%d 个阻止发布的问题:\n", len(issues))
	for _, i := range issues {
		fmt.Fprintf(w, "  - %s\n", i)
	}
}

func printOutcome(w io.Writer, o *service.ReleaseOutcome) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "发布 %s: %s\n", o.RunID, o.FinalState)
	if o.Head != "" {
		fmt.Fprintf(w, "镜像 HEAD: %s\n", o.Head)
	}
	if o.Uploads != nil && len(o.Uploads.Uploaded) > 0 {
		fmt.Fprintf(w, "已上传 %d 个示例\n", len(o.Uploads.Uploaded))
	}
	if o.Assignments != nil && len(o.Assignments.Assigned) > 0 {
		fmt.Fprintf(w, "已自动分配 %d 项内容\n", len(o.Assignments.Assigned))
	}
	if len(o.Issues) > 0 {
		printIssues(w, o.Issues)
	}
	if o.FinalState == service.StatePendingComputed {
		printContents(w, "将发布", o.Pending)
	}
	if o.FinalState == service.StateExecuted {
		fmt.Fprintf(w, "已发布 %d 个作业，工作流 %s", o.ContentsToProcess, o.WorkflowID)
		if o.AssignmentsWorkflowID != "" {
			fmt.Fprintf(w, "，作业同步工作流 %s", o.AssignmentsWorkflowID)
		}
		fmt.Fprintln(w)
	}
	if o.AbortReason != "" {
		fmt.Fprintf(w, "已停止: %s\n", o.AbortReason)
	}
	for _, warn := range o.Warnings {
		fmt.Fprintf(w, "警告: %s\n", warn)
	}
}
