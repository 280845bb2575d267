package main

import (
	"context"
	"fmt"
	"io"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/service"
	"github.com/spf13/cobra"
)

// mirrorCmd 镜像管理命令组
func (a *app) mirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "管理课程的本地 assignments 镜像",
	}
	cmd.AddCommand(a.mirrorEnsureCmd())
	cmd.AddCommand(a.mirrorPushCmd())
	cmd.AddCommand(a.mirrorStatusCmd())
	return cmd
}

func (a *app) mirrorEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <course-id>",
		Short: "克隆或快进 assignments 镜像",
		Long: `镜像不存在时克隆课程的 assignments 仓库，否则以 --ff-only 拉取。
本地历史与远程分叉时，镜像会先复制到备份目录再重新克隆。`,
		Example: `  computor-release mirror ensure 6f1c2a`,
		Args:    cobra.ExactArgs(1),
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
			printHandle(cmd.OutOrStdout(), handle)
			return nil
		},
	}
}

func (a *app) mirrorPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <course-id>",
		Short: "提交并推送本地镜像修改",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			course, err := a.course(ctx, args[0])
			if err != nil {
				return err
			}
			handle, err := a.mirror.CommitAndPush(ctx, course)
			if err != nil {
				return err
			}
			printHandle(cmd.OutOrStdout(), handle)
			if !handle.Committed && !handle.Pushed {
				fmt.Fprintln(cmd.OutOrStdout(), "没有需要提交或推送的内容")
			}
			return nil
		},
	}
}

func (a *app) mirrorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <course-id>",
		Short: "显示镜像路径、HEAD 及工作区是否干净",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			course, err := a.course(ctx, args[0])
			if err != nil {
				return err
			}
			st, err := a.mirror.Status(ctx, course)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (a *app) course(ctx context.Context, courseID string) (*domain.Course, error) {
	course, err := a.api.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("获取课程 %s 失败: %w", courseID, err)
	}
	return course, nil
}

func printHandle(w io.Writer, h *service.MirrorHandle) {
	fmt.Fprintf(w, "镜像:   %s\n", h.Root)
	fmt.Fprintf(w, "HEAD:   %s\n", h.Head)
	if h.Recovered {
		fmt.Fprintf(w, "已从分叉历史恢复，备份位于 %s\n", h.BackupPath)
	}
	for _, warn := range h.Warnings {
		fmt.Fprintf(w, "警告: %s\n", warn)
	}
}

func printStatus(w io.Writer, st *service.MirrorStatus) {
	fmt.Fprintf(w, "镜像:   %s\n", st.Root)
	if !st.Exists {
		fmt.Fprintln(w, "状态:   未克隆")
		return
	}
	state := "干净"
	if !st.Clean {
		state = "有未提交的修改"
	}
	fmt.Fprintf(w, "HEAD:   %s\n", st.Head)
	fmt.Fprintf(w, "状态:   %s\n", state)
}
