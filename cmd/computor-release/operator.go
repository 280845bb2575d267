package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/service"
)

// terminalOperator 通过 go-prompt 与操作者交互
type terminalOperator struct {
	out io.Writer

	// autoApprove 对每个提示使用默认回答 (--yes)
	autoApprove bool

	// repository 按 id 或名称预选上传目标 (--repository)
	repository string

	input func(prefix string, completer prompt.Completer) string
}

func newTerminalOperator(out io.Writer, autoApprove bool, repository string) *terminalOperator {
	return &terminalOperator{
		out:         out,
		autoApprove: autoApprove,
		repository:  strings.TrimSpace(repository),
		input: func(prefix string, completer prompt.Completer) string {
			return prompt.Input(prefix, completer,
				prompt.OptionSuggestionBGColor(prompt.DarkGray),
				prompt.OptionSuggestionTextColor(prompt.White),
				prompt.OptionSelectedSuggestionBGColor(prompt.Blue),
				prompt.OptionSelectedSuggestionTextColor(prompt.White),
			)
		},
	}
}

func (o *terminalOperator) Progress(state service.ReleaseState, message string) {
	fmt.Fprintf(o.out, "[%s] %s\n", state, message)
}

func (o *terminalOperator) Warn(message string) {
	fmt.Fprintf(o.out, "警告: %s\n", message)
}

func (o *terminalOperator) ConfirmRelease(titles []string) (bool, error) {
	fmt.Fprintf(o.out, "以下 %d 个作业将被发布:\n", len(titles))
	for _, t := range titles {
		fmt.Fprintf(o.out, "  - %s\n", t)
	}
	if o.autoApprove {
		return true, nil
	}

	answer := o.ask("现在发布? (yes/no) ", staticCompleter([]prompt.Suggest{
		{Text: "yes", Description: "发布列出的作业"},
		{Text: "no", Description: "不发布并停止"},
	}))
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "", "n", "no":
		return false, nil
	default:
		if isCancel(answer) {
			return false, service.ErrCancelled
		}
		return false, nil
	}
}

// SelectUploads 空输入或 all 表示全选
func (o *terminalOperator) SelectUploads(candidates []service.UploadCandidate) ([]service.UploadCandidate, error) {
	fmt.Fprintln(o.out, "示例目录中缺失的本地示例:")
	for i, c := range candidates {
		fmt.Fprintf(o.out, "  %d) %s  %s\n", i+1, c.Label(), c.Reason)
	}
	if o.autoApprove {
		return candidates, nil
	}

	suggests := []prompt.Suggest{
		{Text: "all", Description: "上传全部列出的示例"},
		{Text: "none", Description: "不上传"},
		{Text: "cancel", Description: "中止发布"},
	}
	for i, c := range candidates {
		suggests = append(suggests, prompt.Suggest{Text: strconv.Itoa(i + 1), Description: c.Label()})
	}

	answer := o.ask("上传哪些? [all] ", staticCompleter(suggests))
	if isCancel(answer) {
		return nil, service.ErrCancelled
	}
	return parseSelection(answer, candidates)
}

func (o *terminalOperator) SelectExampleRepository(repos []domain.ExampleRepository) (*domain.ExampleRepository, error) {
	if o.repository != "" {
		for i := range repos {
			if repos[i].ID == o.repository || strings.EqualFold(repos[i].Name, o.repository) {
				return &repos[i], nil
			}
		}
		return nil, fmt.Errorf("未找到示例仓库 %q", o.repository)
	}
	if len(repos) == 1 {
		return &repos[0], nil
	}
	if o.autoApprove {
		return nil, fmt.Errorf("有 %d 个示例仓库可选，请用 --repository 指定", len(repos))
	}

	sorted := append([]domain.ExampleRepository(nil), repos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	suggests := make([]prompt.Suggest, 0, len(sorted))
	fmt.Fprintln(o.out, "示例仓库:")
	for _, r := range sorted {
		fmt.Fprintf(o.out, "  - %s (%s)\n", r.Name, r.ID)
		suggests = append(suggests, prompt.Suggest{Text: r.Name, Description: r.Description})
	}

	for {
		answer := o.ask("上传到仓库: ", staticCompleter(suggests))
		if isCancel(answer) || answer == "" {
			return nil, service.ErrCancelled
		}
		for i := range sorted {
			if sorted[i].ID == answer || strings.EqualFold(sorted[i].Name, answer) {
				return &sorted[i], nil
			}
		}
		fmt.Fprintf(o.out, "未知仓库 %q\n", answer)
	}
}

func (o *terminalOperator) ask(prefix string, completer prompt.Completer) string {
	return strings.TrimSpace(o.input(prefix, completer))
}

func staticCompleter(suggests []prompt.Suggest) prompt.Completer {
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func isCancel(answer string) bool {
	switch strings.ToLower(answer) {
	case "q", "quit", "cancel", "abort":
		return true
	}
	return false
}

// parseSelection 解析 "1,3 4" 形式的编号
func parseSelection(answer string, candidates []service.UploadCandidate) ([]service.UploadCandidate, error) {
	switch strings.ToLower(answer) {
	case "", "all", "a":
		return candidates, nil
	case "none", "n":
		return nil, nil
	}

	seen := make(map[int]bool)
	var out []service.UploadCandidate
	for _, f := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(candidates) {
			return nil, fmt.Errorf("无效的选择 %q", f)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, candidates[n-1])
	}
	return out, nil
}
