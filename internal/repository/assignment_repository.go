package repository

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"gopkg.in/yaml.v3"
)

// DescriptorFile 每个作业目录中的元数据文件
const DescriptorFile = "meta.yaml"

// ErrDescriptorNotFound 作业目录中没有 meta.yaml
var ErrDescriptorNotFound = errors.New("未找到 meta.yaml")

// AssignmentRepository 读取镜像中的作业目录
type AssignmentRepository interface {
	// ScanAssignments 列出镜像根目录下带 meta.yaml 的作业目录；单个目录解析失败记录在 Err 中
	ScanAssignments(root string) ([]domain.AssignmentDirectory, error)

	// ReadDescriptor 解析目录中的 meta.yaml
	ReadDescriptor(dir string) (*domain.ExampleDescriptor, error)

	// PackageFiles 将目录打包为 相对路径 -> base64 内容
	PackageFiles(dir string) (map[string]string, error)
}

type assignmentRepository struct{}

func NewAssignmentRepository() AssignmentRepository {
	return &assignmentRepository{}
}

func (r *assignmentRepository) ScanAssignments(root string) ([]domain.AssignmentDirectory, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("读取镜像目录失败: %w", err)
	}

	var dirs []domain.AssignmentDirectory
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		desc, err := r.ReadDescriptor(dir)
		if errors.Is(err, ErrDescriptorNotFound) {
			continue
		}
		dirs = append(dirs, domain.AssignmentDirectory{Name: e.Name(), Path: dir, Descriptor: desc, Err: err})
	}
	return dirs, nil
}

func (r *assignmentRepository) ReadDescriptor(dir string) (*domain.ExampleDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", dir, ErrDescriptorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", DescriptorFile, err)
	}

	var desc domain.ExampleDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("解析 %s 失败 (%s): %w", DescriptorFile, dir, err)
	}
	desc.Slug = strings.TrimSpace(desc.Slug)
	desc.Version = strings.TrimSpace(desc.Version)
	return &desc, nil
}

func (r *assignmentRepository) PackageFiles(dir string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("打包 %s 失败: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("打包 %s 失败: 目录为空", dir)
	}
	return files, nil
}
