package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// examplesCmd 示例同步命令组
func (a *app) examplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "使镜像中的示例与示例目录保持一致",
	}
	cmd.AddCommand(a.examplesReconcileCmd())
	cmd.AddCommand(a.examplesAssignCmd())
	return cmd
}

func (a *app) examplesReconcileCmd() *cobra.Command {
	var (
		yes        bool
		repository string
	)

	cmd := &cobra.Command{
		Use:   "reconcile <course-id> [content-id...]",
		Short: "上传示例目录中尚不存在的本地示例",
		Long: `对照示例目录检查所有可提交内容（或只检查给定内容），并从镜像上传缺失的示例。
上传是全有或全无的：任一失败，整批视为未上传。`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			course, err := a.course(ctx, args[0])
			if err != nil {
				return err
			}
			handle, err := a.mirror.EnsureMirror(ctx, course)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			op := newTerminalOperator(out, yes, repository)
			report, err := a.reconciler(op).ReconcileLocalExamples(ctx, course.ID, handle.Root, args[1:])
			if report != nil {
				fmt.Fprintf(out, "检查 %d 项，缺失 %d 项，已上传 %d 项\n", report.Checked, len(report.Missing), len(report.Uploaded))
				for _, c := range report.Uploaded {
					fmt.Fprintf(out, "  + %s\n", c.Label())
				}
				for _, id := range report.Skipped {
					fmt.Fprintf(out, "  跳过 %s: 没有可用的 meta.yaml\n", id)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "不询问，上传所有缺失的示例")
	cmd.Flags().StringVar(&repository, "repository", "", "示例仓库 id 或名称")
	return cmd
}

func (a *app) examplesAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <course-id>",
		Short: "将未分配的内容绑定到其镜像目录描述的示例",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			course, err := a.course(ctx, args[0])
			if err != nil {
				return err
			}
			handle, err := a.mirror.EnsureMirror(ctx, course)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report, err := a.reconciler(newTerminalOperator(out, true, "")).AutoAssignFromLocal(ctx, course.ID, handle.Root)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "考察 %d 项，已分配 %d 项\n", report.Considered, len(report.Assigned))
			for _, id := range report.Unresolved {
				fmt.Fprintf(out, "  %s 没有本地示例\n", id)
			}
			for _, f := range report.Failures {
				fmt.Fprintf(out, "  失败 %s (%s): %s\n", f.Title, f.ContentID, f.Reason)
			}
			return nil
		},
	}
}

// contentCmd 单个课程内容的示例绑定
func (a *app) contentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "为单个内容分配或取消分配示例",
	}

	assign := &cobra.Command{
		Use:   "assign <content-id> <example-identifier> [version-tag]",
		Short: "分配示例版本，未分配的内容变为待发布",
		Example: `  computor-release content assign 91ab hello.world 1.0
  computor-release content assign 91ab hello.world   # 最新版本`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := ""
			if len(args) == 3 {
				tag = args[2]
			}
			c, err := a.contents.Assign(cmd.Context(), args[0], args[1], tag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", c.DisplayName(), c.ExampleIdentifier(), c.Status())
			return nil
		},
	}

	unassign := &cobra.Command{
		Use:   "unassign <content-id>",
		Short: "取消内容的示例分配",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.contents.Unassign(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.DisplayName(), c.Status())
			return nil
		},
	}

	cmd.AddCommand(assign, unassign)
	return cmd
}
