package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/computor-org/computor-vscode-sub001/internal/concurrency"
	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
)

// CourseReader 课程 API 的只读部分，用于区分内容
type CourseReader interface {
	ListCourseContents(ctx context.Context, courseID string) ([]domain.CourseContent, error)
	ListCourseContentKinds(ctx context.Context) ([]domain.CourseContentKind, error)
	GetCourseContentType(ctx context.Context, typeID string) (*domain.CourseContentType, error)
}

// DeploymentIndex 课程内容部署状态的只读视图
type DeploymentIndex interface {
	// LoadSnapshot 拉取课程内容并区分可提交内容
	LoadSnapshot(ctx context.Context, courseID string) (*CourseSnapshot, error)

	// PendingRelease 计算需要发布的内容
	PendingRelease(ctx context.Context, courseID string, scope domain.ReleaseScope, mirrorHead string) (*PendingSet, error)

	// ValidateForRelease 无副作用的发布前检查
	ValidateForRelease(ctx context.Context, courseID string) (*domain.ValidationResult, error)
}

// CourseSnapshot 一次性读取的课程内容，不在调用之间缓存
type CourseSnapshot struct {
	CourseID    string
	Contents    []domain.CourseContent
	Submittable []domain.CourseContent
}

// PendingSet 待发布内容，以及没有分配示例的内容
type PendingSet struct {
	Head       string
	Items      []domain.CourseContent
	Unassigned []domain.CourseContent
	// Unknown 状态无法识别的内容，既不发布也不忽略
	Unknown []domain.CourseContent
}

func (p *PendingSet) IDs() []string {
	ids := make([]string, len(p.Items))
	for i, c := range p.Items {
		ids[i] = c.ID
	}
	return ids
}

func (p *PendingSet) Titles() []string {
	return displayNames(p.Items)
}

type deploymentIndex struct {
	api     CourseReader
	workers int
}

// NewDeploymentIndex workers 限制内容类型查询的并发数
func NewDeploymentIndex(api CourseReader, workers int) DeploymentIndex {
	return &deploymentIndex{api: api, workers: workers}
}

func (d *deploymentIndex) LoadSnapshot(ctx context.Context, courseID string) (*CourseSnapshot, error) {
	log := logger.GetLogger()

	contents, err := d.api.ListCourseContents(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("获取课程内容失败: %w", err)
	}
	kinds, err := d.api.ListCourseContentKinds(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取内容类别失败: %w", err)
	}

	submittableKind := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		submittableKind[k.ID] = k.Submittable
	}

	// 内容类型 -> 类别，只在本次快照内缓存
	typeIDs := uniqueTypeIDs(contents)
	types, errs := concurrency.ProcessParallel(ctx, typeIDs, concurrency.ParallelOptions{MaxWorkers: d.workers},
		func(ctx context.Context, _ int, id string) (*domain.CourseContentType, error) {
			return d.api.GetCourseContentType(ctx, id)
		})
	if len(errs) > 0 {
		return nil, fmt.Errorf("获取内容类型失败 (%d/%d): %w", len(errs), len(typeIDs), errs[0])
	}

	kindOfType := make(map[string]string, len(types))
	for i, t := range types {
		if t != nil {
			kindOfType[typeIDs[i]] = t.CourseContentKindID
		}
	}

	snap := &CourseSnapshot{CourseID: courseID, Contents: contents}
	for _, c := range contents {
		kind := c.CourseContentKindID
		if kind == "" {
			kind = kindOfType[c.CourseContentTypeID]
		}
		if submittableKind[kind] {
			snap.Submittable = append(snap.Submittable, c)
		}
	}

	log.Debug("课程快照: course=%s, contents=%d, submittable=%d, types=%d", courseID, len(contents), len(snap.Submittable), len(typeIDs))
	return snap, nil
}

func (d *deploymentIndex) PendingRelease(ctx context.Context, courseID string, scope domain.ReleaseScope, mirrorHead string) (*PendingSet, error) {
	snap, err := d.LoadSnapshot(ctx, courseID)
	if err != nil {
		return nil, err
	}
	inScope, err := FilterScope(snap, scope)
	if err != nil {
		return nil, err
	}
	set := SelectPending(inScope, mirrorHead)
	logger.GetLogger().Info("待发布: course=%s, scope=%s, head=%s, pending=%d, unassigned=%d",
		courseID, scope, shortHash(mirrorHead), len(set.Items), len(set.Unassigned))
	return set, nil
}

func (d *deploymentIndex) ValidateForRelease(ctx context.Context, courseID string) (*domain.ValidationResult, error) {
	snap, err := d.LoadSnapshot(ctx, courseID)
	if err != nil {
		return nil, err
	}
	res := ValidateItems(snap.Submittable)
	return &res, nil
}

// SelectPending 选出 pending、failed 以及记录的提交与 head 不同的 deployed 内容。
// 未分配和状态无法识别的内容单独列出
func SelectPending(items []domain.CourseContent, head string) *PendingSet {
	set := &PendingSet{Head: head}
	for _, c := range items {
		switch c.Status() {
		case domain.StatusPending, domain.StatusFailed:
			set.Items = append(set.Items, c)
		case domain.StatusDeployed:
			if c.VersionIdentifier() != head {
				set.Items = append(set.Items, c)
			}
		case domain.StatusUnassigned:
			set.Unassigned = append(set.Unassigned, c)
		default:
			logger.GetLogger().Warn("无法识别的部署状态 %q: %s (%s)", c.Status(), c.DisplayName(), c.ID)
			set.Unknown = append(set.Unknown, c)
		}
	}
	sortContents(set.Items)
	sortContents(set.Unassigned)
	sortContents(set.Unknown)
	return set
}

// ValidateItems 标记所有未分配示例的可提交内容
func ValidateItems(items []domain.CourseContent) domain.ValidationResult {
	res := domain.ValidationResult{Checked: len(items)}
	for _, c := range items {
		if c.Status() == domain.StatusUnassigned {
			res.Issues = append(res.Issues, domain.ValidationIssue{
				ContentID: c.ID,
				Title:     c.DisplayName(),
				Path:      c.Path,
				Reason:    "未分配示例",
			})
		}
	}
	sort.Slice(res.Issues, func(i, j int) bool {
		if res.Issues[i].Path != res.Issues[j].Path {
			return res.Issues[i].Path < res.Issues[j].Path
		}
		return res.Issues[i].ContentID < res.Issues[j].ContentID
	})
	return res
}

// FilterScope 按范围筛选可提交内容；subtree 和 path 包含节点本身及所有后代
func FilterScope(snap *CourseSnapshot, scope domain.ReleaseScope) ([]domain.CourseContent, error) {
	var root string
	switch scope.Kind {
	case domain.ScopeKindAll, "":
		return snap.Submittable, nil
	case domain.ScopeKindSubtree:
		for _, c := range snap.Contents {
			if c.ID == scope.ParentID {
				root = c.Path
				break
			}
		}
		if root == "" {
			return nil, fmt.Errorf("范围 %s: 课程 %s 中没有该内容", scope, snap.CourseID)
		}
	case domain.ScopeKindPath:
		root = strings.Trim(scope.Path, ".")
		if root == "" {
			return nil, fmt.Errorf("范围 %s: 路径为空", scope)
		}
	default:
		return nil, fmt.Errorf("未知的范围类型 %q", scope.Kind)
	}

	var out []domain.CourseContent
	for _, c := range snap.Submittable {
		if c.IsWithin(root) {
			out = append(out, c)
		}
	}
	return out, nil
}

func sortContents(items []domain.CourseContent) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Path != items[j].Path {
			return items[i].Path < items[j].Path
		}
		return items[i].ID < items[j].ID
	})
}

func uniqueTypeIDs(contents []domain.CourseContent) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range contents {
		if c.CourseContentTypeID == "" || seen[c.CourseContentTypeID] {
			continue
		}
		seen[c.CourseContentTypeID] = true
		ids = append(ids, c.CourseContentTypeID)
	}
	sort.Strings(ids)
	return ids
}
