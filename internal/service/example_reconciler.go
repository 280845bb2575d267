package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
	"github.com/computor-org/computor-vscode-sub001/internal/repository"
)

// ExampleAPI 课程 API 中的示例目录部分
type ExampleAPI interface {
	ValidateCourseContents(ctx context.Context, courseID string, items []domain.ContentValidation) (*domain.ValidationResponse, error)
	ListExampleRepositories(ctx context.Context) ([]domain.ExampleRepository, error)
	UploadExample(ctx context.Context, upload domain.ExampleUpload) (*domain.ExampleVersion, error)
	AssignExample(ctx context.Context, contentID string, req domain.AssignExampleRequest) (*domain.CourseContent, error)
}

// ExampleReconciler 将镜像中的示例与远程示例目录对齐
type ExampleReconciler interface {
	// ReconcileLocalExamples 上传远程缺失的示例；上传要么全部成功，要么视为全部未上传
	ReconcileLocalExamples(ctx context.Context, courseID, mirrorRoot string, contentIDs []string) (*UploadReport, error)

	// AutoAssignFromLocal 为缺少示例版本的内容绑定本地描述对应的版本
	AutoAssignFromLocal(ctx context.Context, courseID, mirrorRoot string) (*AssignReport, error)
}

// UploadReport 上传决策与结果
type UploadReport struct {
	Checked  int
	Missing  []UploadCandidate
	Selected []UploadCandidate
	Uploaded []UploadCandidate
	Failed   string
	// Skipped 目录中没有可用 meta.yaml 的内容
	Skipped []string
}

// AssignFailure 自动分配未能绑定的内容
type AssignFailure struct {
	ContentID string
	Title     string
	Reason    string
}

// AssignReport 自动分配结果
type AssignReport struct {
	Considered int
	Assigned   []string
	Unresolved []string
	Failures   []AssignFailure
}

type localExample struct {
	content    domain.CourseContent
	directory  string
	path       string
	descriptor domain.ExampleDescriptor
}

type exampleReconciler struct {
	api         ExampleAPI
	index       DeploymentIndex
	assignments repository.AssignmentRepository
	operator    Operator
}

func NewExampleReconciler(api ExampleAPI, index DeploymentIndex, assignments repository.AssignmentRepository, op Operator) ExampleReconciler {
	return &exampleReconciler{api: api, index: index, assignments: assignments, operator: op}
}

func (r *exampleReconciler) ReconcileLocalExamples(ctx context.Context, courseID, mirrorRoot string, contentIDs []string) (*UploadReport, error) {
	log := logger.GetLogger()

	snap, err := r.index.LoadSnapshot(ctx, courseID)
	if err != nil {
		return nil, err
	}

	items := restrictTo(snap.Submittable, contentIDs)
	locals, skipped, err := r.resolveLocal(items, mirrorRoot)
	if err != nil {
		return &UploadReport{}, err
	}
	report := &UploadReport{Checked: len(locals), Skipped: skipped}
	if len(locals) == 0 {
		log.Info("没有可校验的本地示例: course=%s", courseID)
		return report, nil
	}

	results, err := r.validate(ctx, courseID, locals)
	if err != nil {
		return report, err
	}

	seenDir := make(map[string]bool)
	for _, l := range locals {
		res, ok := results[l.content.ID]
		if !ok || res.Valid || seenDir[l.directory] {
			continue
		}
		seenDir[l.directory] = true
		report.Missing = append(report.Missing, UploadCandidate{
			ContentID:  l.content.ID,
			Title:      l.content.DisplayName(),
			Directory:  l.directory,
			Path:       l.path,
			Descriptor: l.descriptor,
			Reason:     res.ValidationMessage,
		})
	}
	if len(report.Missing) == 0 {
		log.Info("所有本地示例均已存在于示例目录: course=%s, checked=%d", courseID, len(locals))
		return report, nil
	}

	selected, err := r.operator.SelectUploads(report.Missing)
	if err != nil {
		return report, cancelled(err, "选择上传示例")
	}
	report.Selected = selected
	if len(selected) == 0 {
		log.Info("操作员未选择任何示例上传")
		return report, nil
	}

	repos, err := r.api.ListExampleRepositories(ctx)
	if err != nil {
		return report, newError(ErrUploadFailed, err, "无法列出示例仓库")
	}
	if len(repos) == 0 {
		return report, newError(ErrUploadFailed, nil, "没有可用的示例仓库")
	}
	target, err := r.operator.SelectExampleRepository(repos)
	if err != nil {
		return report, cancelled(err, "选择示例仓库")
	}
	if target == nil {
		return report, newError(ErrCancelled, nil, "未选择示例仓库")
	}

	// 先全部打包，任何一个失败都不开始上传
	uploads := make([]domain.ExampleUpload, len(selected))
	for i, c := range selected {
		files, err := r.assignments.PackageFiles(c.Path)
		if err != nil {
			report.Failed = c.Directory
			return report, &ReleaseError{Kind: ErrUploadFailed, Msg: "打包失败，未上传任何示例", Items: []string{c.Directory}, Err: err}
		}
		uploads[i] = domain.ExampleUpload{RepositoryID: target.ID, Directory: c.Directory, Files: files}
	}

	var done []UploadCandidate
	for i, up := range uploads {
		log.Info("上传示例 (%d/%d): %s -> %s", i+1, len(uploads), selected[i].Label(), target.Name)
		if _, err := r.api.UploadExample(ctx, up); err != nil {
			log.Error("上传失败: %s: %v", selected[i].Directory, err)
			report.Failed = selected[i].Directory
			return report, &ReleaseError{
				Kind:  ErrUploadFailed,
				Msg:   fmt.Sprintf("失败前已完成 %d/%d 个上传；整批视为未上传", len(done), len(uploads)),
				Items: []string{selected[i].Directory},
				Err:   err,
			}
		}
		done = append(done, selected[i])
	}

	report.Uploaded = done
	log.Info("示例上传完成: %d 个", len(done))
	return report, nil
}

func (r *exampleReconciler) AutoAssignFromLocal(ctx context.Context, courseID, mirrorRoot string) (*AssignReport, error) {
	log := logger.GetLogger()

	snap, err := r.index.LoadSnapshot(ctx, courseID)
	if err != nil {
		return nil, err
	}

	var targets []domain.CourseContent
	for _, c := range snap.Submittable {
		if c.ExampleVersionID() == "" {
			targets = append(targets, c)
		}
	}
	report := &AssignReport{Considered: len(targets)}
	if len(targets) == 0 {
		return report, nil
	}

	locals, unresolved, err := r.resolveLocal(targets, mirrorRoot)
	if err != nil {
		return report, err
	}
	report.Unresolved = unresolved
	if len(locals) == 0 {
		return report, nil
	}

	results, err := r.validate(ctx, courseID, locals)
	if err != nil {
		return report, err
	}

	for _, l := range locals {
		res, ok := results[l.content.ID]
		if !ok || !res.Valid {
			msg := "示例目录中没有该示例"
			if ok && res.ValidationMessage != "" {
				msg = res.ValidationMessage
			}
			report.Failures = append(report.Failures, AssignFailure{ContentID: l.content.ID, Title: l.content.DisplayName(), Reason: msg})
			continue
		}

		_, err := r.api.AssignExample(ctx, l.content.ID, domain.AssignExampleRequest{
			ExampleIdentifier: l.descriptor.Slug,
			VersionTag:        l.descriptor.Version,
		})
		if err != nil {
			log.Warn("自动分配失败: %s: %v", l.content.Path, err)
			report.Failures = append(report.Failures, AssignFailure{ContentID: l.content.ID, Title: l.content.DisplayName(), Reason: err.Error()})
			continue
		}
		log.Info("已分配示例: %s -> %s@%s", l.content.Path, l.descriptor.Slug, l.descriptor.Version)
		report.Assigned = append(report.Assigned, l.content.ID)
	}
	return report, nil
}

// resolveLocal 将内容映射到镜像中的作业目录。已有 example_identifier 的内容只认
// 同名目录；没有标识的内容才按路径最后一段查找
func (r *exampleReconciler) resolveLocal(items []domain.CourseContent, root string) ([]localExample, []string, error) {
	log := logger.GetLogger()

	dirs, err := r.assignments.ScanAssignments(root)
	if err != nil {
		return nil, nil, newError(ErrRepository, err, "无法扫描镜像 %s", root)
	}
	byName := make(map[string]domain.AssignmentDirectory, len(dirs))
	for _, d := range dirs {
		byName[d.Name] = d
	}

	var (
		out     []localExample
		skipped []string
	)
	for _, c := range items {
		name := c.DirectoryName()
		d, ok := byName[name]
		switch {
		case name == "" || !ok:
			if id := c.ExampleIdentifier(); id != "" {
				log.Warn("跳过 %s: 镜像中没有目录 %s", c.Path, id)
			}
			skipped = append(skipped, c.ID)
		case d.Err != nil:
			log.Warn("跳过 %s: %v", c.Path, d.Err)
			skipped = append(skipped, c.ID)
		case !d.Descriptor.Complete():
			log.Warn("跳过 %s: meta.yaml 缺少 slug 或 version", d.Path)
			skipped = append(skipped, c.ID)
		default:
			out = append(out, localExample{content: c, directory: d.Name, path: d.Path, descriptor: *d.Descriptor})
		}
	}
	return out, skipped, nil
}

// validate 一次请求批量校验 (slug, version)
func (r *exampleReconciler) validate(ctx context.Context, courseID string, locals []localExample) (map[string]domain.ContentValidationResult, error) {
	batch := make([]domain.ContentValidation, len(locals))
	for i, l := range locals {
		batch[i] = domain.ContentValidation{
			ContentID:         l.content.ID,
			ExampleIdentifier: l.descriptor.Slug,
			VersionTag:        l.descriptor.Version,
		}
	}
	resp, err := r.api.ValidateCourseContents(ctx, courseID, batch)
	if err != nil {
		return nil, fmt.Errorf("批量校验示例失败: %w", err)
	}
	out := make(map[string]domain.ContentValidationResult, len(resp.ValidationResults))
	for _, res := range resp.ValidationResults {
		out[res.ContentID] = res
	}
	return out, nil
}

func restrictTo(items []domain.CourseContent, ids []string) []domain.CourseContent {
	if len(ids) == 0 {
		return items
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.CourseContent
	for _, c := range items {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func cancelled(err error, step string) error {
	if errors.Is(err, ErrCancelled) {
		return newError(ErrCancelled, nil, "%s", step)
	}
	return newError(ErrCancelled, err, "%s失败", step)
}
