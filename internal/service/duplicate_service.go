package service

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/log"
)

// DuplicateService 在上传前检查候选文件与部门现有文件的重名和相关性。
type DuplicateService interface {
	CheckDuplicates(ctx context.Context, p *model.Principal, candidates []model.DuplicateCandidate) ([]model.DuplicateReport, error)
}

type duplicateService struct {
	fileRepo repository.FileRepository
}

func NewDuplicateService(fileRepo repository.FileRepository) DuplicateService {
	return &duplicateService{fileRepo: fileRepo}
}

var tokenSeparator = regexp.MustCompile(`[\s_-]+`)

// 最后一段扩展名须非空且不含路径分隔符。
var trailingExtension = regexp.MustCompile(`\.[^/.]+$`)

// normalizeBaseName 去掉最后一个扩展名并转为小写。
func normalizeBaseName(name string) string {
	return strings.ToLower(trailingExtension.ReplaceAllString(name, ""))
}

// significantTokens 按空白、下划线、连字符切分，只保留长度大于 2 的词。
func significantTokens(baseName string) []string {
	var tokens []string
	for _, tok := range tokenSeparator.Split(baseName, -1) {
		if utf8.RuneCountInString(tok) > 2 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func isRelated(tokens []string, existingBase string) bool {
	for _, tok := range tokens {
		if strings.Contains(existingBase, tok) {
			return true
		}
	}
	return false
}

// CheckDuplicates 对每个候选文件独立给出查重结果，结果顺序与输入一致。
func (s *duplicateService) CheckDuplicates(ctx context.Context, p *model.Principal, candidates []model.DuplicateCandidate) ([]model.DuplicateReport, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}

	existing, err := s.fileRepo.FindByDepartment(deptID)
	if err != nil {
		log.Errorf("[DuplicateService] 查询部门文件失败, dept: %d, error: %v", deptID, err)
		return nil, model.WrapInternal("查詢檔案失敗", err)
	}

	existingBases := make([]string, len(existing))
	for i, f := range existing {
		existingBases[i] = normalizeBaseName(f.Name)
	}

	reports := make([]model.DuplicateReport, 0, len(candidates))
	for _, c := range candidates {
		report := model.DuplicateReport{FileName: c.Name, RelatedFiles: []model.File{}}
		tokens := significantTokens(normalizeBaseName(c.Name))

		for i := range existing {
			f := existing[i]
			if f.Name == c.Name {
				if report.DuplicateFile == nil {
					report.IsDuplicate = true
					report.DuplicateFile = &f
				}
				continue
			}
			if isRelated(tokens, existingBases[i]) {
				report.RelatedFiles = append(report.RelatedFiles, f)
			}
		}
		report.SuggestReplace = len(report.RelatedFiles) > 0
		reports = append(reports, report)
	}

	log.Infof("[DuplicateService] 查重完成, dept: %d, candidates: %d", deptID, len(candidates))
	return reports, nil
}
