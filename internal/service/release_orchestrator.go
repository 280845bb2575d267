package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/computor-org/computor-vscode-sub001/internal/config"
	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
	"github.com/google/uuid"
)

// ReleaseState 发布流程状态
type ReleaseState string

const (
	StateStart           ReleaseState = "start"
	StateMirrorPrepared  ReleaseState = "mirror_prepared"
	StateReconciled      ReleaseState = "reconciled"
	StateValidated       ReleaseState = "validated"
	StatePendingComputed ReleaseState = "pending_computed"
	StateConfirmed       ReleaseState = "confirmed"
	StateExecuted        ReleaseState = "executed"
	StateAborted         ReleaseState = "aborted"
)

var nextState = map[ReleaseState]ReleaseState{
	StateStart:           StateMirrorPrepared,
	StateMirrorPrepared:  StateReconciled,
	StateReconciled:      StateValidated,
	StateValidated:       StatePendingComputed,
	StatePendingComputed: StateConfirmed,
	StateConfirmed:       StateExecuted,
}

// IsTerminal 终态不允许再转换
func (s ReleaseState) IsTerminal() bool {
	return s == StateExecuted || s == StateAborted
}

func isAllowedTransition(from, to ReleaseState) bool {
	if from.IsTerminal() {
		return false
	}
	return to == StateAborted || nextState[from] == to
}

// ReleaseAPI 课程 API 中负责发布的部分
type ReleaseAPI interface {
	GetCourse(ctx context.Context, courseID string) (*domain.Course, error)
	GenerateAssignments(ctx context.Context, courseID string, req domain.GenerateAssignmentsRequest) (*domain.WorkflowResponse, error)
	GenerateStudentTemplate(ctx context.Context, courseID string, req domain.GenerateStudentTemplateRequest) (*domain.StudentTemplateResponse, error)
}

// ReleaseOptions 单次发布参数
type ReleaseOptions struct {
	Scope domain.ReleaseScope

	// DryRun 计算出待发布集合后停止，不写镜像远程也不调用发布接口
	DryRun bool

	// SkipReconcile 跳过示例上传和自动分配
	SkipReconcile bool
}

// ReleaseOutcome 发布结果
type ReleaseOutcome struct {
	RunID       string
	CourseID    string
	Scope       domain.ReleaseScope
	FinalState  ReleaseState
	Transitions []ReleaseState
	Head        string

	Pending     []domain.CourseContent
	Unassigned  []domain.CourseContent
	Unknown     []domain.CourseContent
	Issues      []domain.ValidationIssue
	Uploads     *UploadReport
	Assignments *AssignReport

	Warnings              []string
	AssignmentsWorkflowID string
	WorkflowID            string
	ContentsToProcess     int
	AbortReason           string
}

// ReleaseOrchestrator 发布流程入口
type ReleaseOrchestrator interface {
	// RunRelease 驱动发布状态机。总是返回 outcome；只有致命中止时 err 非 nil
	RunRelease(ctx context.Context, courseID string, opts ReleaseOptions) (*ReleaseOutcome, error)
}

type releaseOrchestrator struct {
	config     *config.Config
	api        ReleaseAPI
	mirror     MirrorStore
	reconciler ExampleReconciler
	index      DeploymentIndex
	operator   Operator
	locks      *courseLocks
}

func NewReleaseOrchestrator(cfg *config.Config, api ReleaseAPI, mirror MirrorStore, reconciler ExampleReconciler, index DeploymentIndex, op Operator) ReleaseOrchestrator {
	return &releaseOrchestrator{
		config:     cfg,
		api:        api,
		mirror:     mirror,
		reconciler: reconciler,
		index:      index,
		operator:   op,
		locks:      newCourseLocks(cfg.MirrorDir, releaseLockFile),
	}
}

const releaseLockFile = ".release.lock"

// releaseRun 单次调用的状态，不持久化
type releaseRun struct {
	orch    *releaseOrchestrator
	course  *domain.Course
	root    string
	opts    ReleaseOptions
	state   ReleaseState
	outcome *ReleaseOutcome

	// 操作员确认过的内容 id
	confirmed map[string]bool
}

func (r *releaseRun) transition(to ReleaseState, format string, args ...any) error {
	if !isAllowedTransition(r.state, to) {
		return fmt.Errorf("不允许的状态转换: %s -> %s", r.state, to)
	}
	r.state = to
	r.outcome.FinalState = to
	r.outcome.Transitions = append(r.outcome.Transitions, to)

	msg := fmt.Sprintf(format, args...)
	logger.GetLogger().Info("[release %s] %s: %s", r.outcome.RunID[:8], to, msg)
	r.orch.operator.Progress(to, msg)
	return nil
}

// abort 结束本次发布；err 为 nil 表示提示性中止
func (r *releaseRun) abort(reason string, err error) (*ReleaseOutcome, error) {
	r.outcome.AbortReason = reason
	if terr := r.transition(StateAborted, "%s", reason); terr != nil {
		return r.outcome, errors.Join(err, terr)
	}
	if err != nil {
		logger.GetLogger().Error("[release %s] aborted: %v", r.outcome.RunID[:8], err)
	}
	return r.outcome, err
}

func (r *releaseRun) warn(msg string) {
	r.outcome.Warnings = append(r.outcome.Warnings, msg)
	logger.GetLogger().Warn("[release %s] %s", r.outcome.RunID[:8], msg)
	r.orch.operator.Warn(msg)
}

func (o *releaseOrchestrator) RunRelease(ctx context.Context, courseID string, opts ReleaseOptions) (*ReleaseOutcome, error) {
	if opts.Scope.Kind == "" {
		opts.Scope = domain.ScopeAll()
	}

	run := &releaseRun{
		orch:  o,
		opts:  opts,
		state: StateStart,
		outcome: &ReleaseOutcome{
			RunID:       uuid.NewString(),
			CourseID:    courseID,
			Scope:       opts.Scope,
			FinalState:  StateStart,
			Transitions: []ReleaseState{StateStart},
		},
	}
	logger.GetLogger().Info("[release %s] 开始: course=%s, scope=%s, dryRun=%v", run.outcome.RunID[:8], courseID, opts.Scope, opts.DryRun)

	// 同一课程的发布在进程之间也串行执行
	unlock, err := o.locks.lock(ctx, courseID)
	if err != nil {
		return run.abort("无法获得课程发布锁", err)
	}
	defer unlock()

	course, err := o.api.GetCourse(ctx, courseID)
	if err != nil {
		return run.abort("无法读取课程", newError(ErrMirrorUnavailable, err, "课程 %s", courseID))
	}
	run.course = course

	steps := []func(context.Context) (done bool, err error){
		run.prepareMirror,
		run.reconcile,
		run.validate,
		run.computePending,
		run.confirm,
		run.execute,
	}
	for _, step := range steps {
		done, err := step(ctx)
		if err != nil || done {
			return run.outcome, err
		}
	}
	return run.outcome, nil
}

// Start -> MirrorPrepared
func (r *releaseRun) prepareMirror(ctx context.Context) (bool, error) {
	m := r.orch.mirror

	h, err := m.EnsureMirror(ctx, r.course)
	if err != nil {
		_, err = r.abort("无法准备镜像", err)
		return true, err
	}
	for _, w := range h.Warnings {
		r.warn(w)
	}
	r.root = h.Root

	if r.opts.DryRun {
		r.outcome.Head = h.Head
		return false, r.transition(StateMirrorPrepared, "镜像就绪 %s (dry run，未推送)", shortHash(h.Head))
	}

	pushed, err := m.CommitAndPush(ctx, r.course)
	if err != nil {
		_, err = r.abort("镜像提交或推送失败", err)
		return true, err
	}
	for _, w := range pushed.Warnings {
		r.warn(w)
	}
	r.outcome.Head = pushed.Head

	msg := "镜像已同步，HEAD %s"
	switch {
	case pushed.Committed:
		msg = "本地改动已提交并推送，HEAD %s"
	case pushed.Pushed:
		msg = "之前未推送的提交已推送，HEAD %s"
	}
	return false, r.transition(StateMirrorPrepared, msg, shortHash(pushed.Head))
}

// MirrorPrepared -> Reconciled
func (r *releaseRun) reconcile(ctx context.Context) (bool, error) {
	if r.opts.DryRun || r.opts.SkipReconcile {
		return false, r.transition(StateReconciled, "跳过示例对齐")
	}

	uploads, err := r.orch.reconciler.ReconcileLocalExamples(ctx, r.course.ID, r.root, nil)
	r.outcome.Uploads = uploads
	switch {
	case errors.Is(err, ErrCancelled):
		_, err = r.abort("操作员在示例上传时取消", err)
		return true, err
	case errors.Is(err, ErrUploadFailed):
		if r.outcome.Uploads != nil {
			r.outcome.Uploads.Uploaded = nil
		}
		_, err = r.abort("示例上传失败", err)
		return true, err
	case err != nil:
		r.warn(fmt.Sprintf("示例上传检查失败: %v", err))
	}

	assigned, err := r.orch.reconciler.AutoAssignFromLocal(ctx, r.course.ID, r.root)
	r.outcome.Assignments = assigned
	if err != nil {
		r.warn(fmt.Sprintf("自动分配失败: %v", err))
	}
	if assigned != nil && len(assigned.Failures) > 0 {
		lines := make([]string, len(assigned.Failures))
		for i, f := range assigned.Failures {
			lines[i] = fmt.Sprintf("%s: %s", f.Title, f.Reason)
		}
		r.warn(fmt.Sprintf("%d 项内容未能自动分配: %s", len(lines), strings.Join(lines, "; ")))
	}

	uploaded, bound := 0, 0
	if uploads != nil {
		uploaded = len(uploads.Uploaded)
	}
	if assigned != nil {
		bound = len(assigned.Assigned)
	}
	return false, r.transition(StateReconciled, "已上传 %d 个示例，自动分配 %d 项内容", uploaded, bound)
}

// Reconciled -> Validated
func (r *releaseRun) validate(ctx context.Context) (bool, error) {
	res, err := r.orch.index.ValidateForRelease(ctx, r.course.ID)
	if err != nil {
		_, err = r.abort("无法执行发布校验", newError(ErrValidationBlocked, err, "校验请求失败"))
		return true, err
	}
	if res.Blocking() {
		r.outcome.Issues = res.Issues
		_, err = r.abort(fmt.Sprintf("%d 项内容阻止发布", len(res.Issues)), &ValidationBlockedError{Issues: res.Issues})
		return true, err
	}
	return false, r.transition(StateValidated, "已检查 %d 项可提交内容", res.Checked)
}

// Validated -> PendingComputed
func (r *releaseRun) computePending(ctx context.Context) (bool, error) {
	set, err := r.orch.index.PendingRelease(ctx, r.course.ID, r.opts.Scope, r.outcome.Head)
	if err != nil {
		_, err = r.abort("无法计算待发布内容", newError(ErrReleaseExecutionFailed, err, "计算待发布内容"))
		return true, err
	}
	r.outcome.Pending = set.Items
	r.outcome.Unassigned = set.Unassigned
	r.outcome.Unknown = set.Unknown
	if len(set.Unknown) > 0 {
		r.warn(fmt.Sprintf("%d 项内容的部署状态无法识别，不会发布: %s",
			len(set.Unknown), strings.Join(displayNames(set.Unknown), ", ")))
	}

	if len(set.Items) == 0 {
		_, err = r.abort("没有需要发布的内容: 范围内所有内容都已部署在当前 HEAD", nil)
		return true, err
	}
	if err := r.transition(StatePendingComputed, "%d 项内容待发布", len(set.Items)); err != nil {
		return true, err
	}
	// dry run 在此结束
	return r.opts.DryRun, nil
}

// PendingComputed -> Confirmed
func (r *releaseRun) confirm(ctx context.Context) (bool, error) {
	titles := displayNames(r.outcome.Pending)

	ok, err := r.orch.operator.ConfirmRelease(titles)
	if err != nil && !errors.Is(err, ErrCancelled) {
		_, err = r.abort("确认失败", newError(ErrCancelled, err, "确认发布"))
		return true, err
	}
	if err != nil || !ok {
		_, err = r.abort("操作员拒绝发布", nil)
		return true, err
	}
	r.confirmed = make(map[string]bool, len(r.outcome.Pending))
	for _, c := range r.outcome.Pending {
		r.confirmed[c.ID] = true
	}
	return false, r.transition(StateConfirmed, "操作员已确认 %d 项内容", len(titles))
}

// Confirmed -> Executed
func (r *releaseRun) execute(ctx context.Context) (bool, error) {
	api := r.orch.api
	cfg := r.orch.config

	// 确认期间状态可能已改变，按当前 HEAD 重新计算
	head, err := r.orch.mirror.HeadOf(ctx, r.course)
	if err != nil {
		_, err = r.abort("无法解析镜像 HEAD", newError(ErrReleaseExecutionFailed, err, "重新解析 HEAD"))
		return true, err
	}
	set, err := r.orch.index.PendingRelease(ctx, r.course.ID, r.opts.Scope, head)
	if err != nil {
		_, err = r.abort("无法重新计算待发布内容", newError(ErrReleaseExecutionFailed, err, "重新计算待发布内容"))
		return true, err
	}

	// 只发布操作员确认过的内容，确认之后才变为待发布的留到下一次
	var confirmed, added []domain.CourseContent
	for _, c := range set.Items {
		if r.confirmed[c.ID] {
			confirmed = append(confirmed, c)
		} else {
			added = append(added, c)
		}
	}
	if len(added) > 0 {
		r.warn(fmt.Sprintf("%d 项内容在确认之后才变为待发布，留到下一次发布: %s",
			len(added), strings.Join(displayNames(added), ", ")))
	}
	set.Items = confirmed

	r.outcome.Head = head
	r.outcome.Pending = set.Items
	r.outcome.Unassigned = set.Unassigned
	r.outcome.Unknown = set.Unknown
	if len(set.Items) == 0 {
		_, err = r.abort("按当前 HEAD 重新检查后没有需要发布的内容", nil)
		return true, err
	}
	ids := set.IDs()

	gen, err := api.GenerateAssignments(ctx, r.course.ID, domain.GenerateAssignmentsRequest{
		CourseContentIDs:  ids,
		OverwriteStrategy: cfg.Release.OverwriteStrategy,
		CommitMessage:     cfg.Release.CommitMessage,
	})
	if err != nil {
		r.warn(newError(ErrAssignmentSyncFailed, err, "为 %d 项内容生成作业", len(ids)).Error())
	} else {
		r.outcome.AssignmentsWorkflowID = gen.WorkflowID
	}

	resp, err := api.GenerateStudentTemplate(ctx, r.course.ID, domain.GenerateStudentTemplateRequest{
		Release: domain.StudentTemplateRelease{CourseContentIDs: ids},
	})
	if err != nil {
		titles := set.Titles()
		_, err = r.abort("学生模板发布失败", &ReleaseError{
			Kind:  ErrReleaseExecutionFailed,
			Msg:   "生成学生模板",
			Items: titles,
			Err:   err,
		})
		return true, err
	}
	r.outcome.WorkflowID = resp.WorkflowID
	r.outcome.ContentsToProcess = resp.ContentsToProcess

	return true, r.transition(StateExecuted, "学生模板工作流 %s 已启动，共 %d 项内容", resp.WorkflowID, resp.ContentsToProcess)
}

func displayNames(items []domain.CourseContent) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.DisplayName()
	}
	return out
}
