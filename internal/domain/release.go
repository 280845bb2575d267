package domain

import (
	"fmt"
	"strings"
)

// ScopeKind 发布范围类型
type ScopeKind string

const (
	ScopeKindAll     ScopeKind = "all"
	ScopeKindSubtree ScopeKind = "subtree"
	ScopeKindPath    ScopeKind = "path"
)

// ReleaseScope 发布范围，每次调用时构造，不持久化
type ReleaseScope struct {
	Kind     ScopeKind
	ParentID string
	Path     string
}

func ScopeAll() ReleaseScope { return ReleaseScope{Kind: ScopeKindAll} }

func ScopeSubtree(parentID string) ReleaseScope {
	return ReleaseScope{Kind: ScopeKindSubtree, ParentID: strings.TrimSpace(parentID)}
}

func ScopePath(path string) ReleaseScope {
	return ReleaseScope{Kind: ScopeKindPath, Path: strings.Trim(strings.TrimSpace(path), ".")}
}

// ParseScope 解析 "all"、"subtree:<content-id>" 或 "path:<dot.path>"
func ParseScope(s string) (ReleaseScope, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return ScopeAll(), nil
	}
	kind, value, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(value) == "" {
		return ReleaseScope{}, fmt.Errorf("无效的发布范围 %q（应为 all、subtree:<id> 或 path:<path>）", s)
	}
	switch ScopeKind(strings.ToLower(strings.TrimSpace(kind))) {
	case ScopeKindSubtree:
		return ScopeSubtree(value), nil
	case ScopeKindPath:
		return ScopePath(value), nil
	default:
		return ReleaseScope{}, fmt.Errorf("无效的发布范围类型 %q", kind)
	}
}

func (s ReleaseScope) String() string {
	switch s.Kind {
	case ScopeKindSubtree:
		return "subtree:" + s.ParentID
	case ScopeKindPath:
		return "path:" + s.Path
	default:
		return "all"
	}
}

// ValidationIssue 阻止发布的问题
type ValidationIssue struct {
	ContentID string
	Title     string
	Path      string
	Reason    string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s (%s): %s", i.Title, i.Path, i.Reason)
}

// ValidationResult 发布前无副作用的校验结果
type ValidationResult struct {
	Checked int
	Issues  []ValidationIssue
}

func (r ValidationResult) Blocking() bool { return len(r.Issues) > 0 }
