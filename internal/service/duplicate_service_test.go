package service

import (
	"context"
	"testing"

	"kb-admin-go/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCheckDuplicates_ExactMatch(t *testing.T) {
	env := newTestEnv(t)
	dept, admin := env.department(t, "人事部")
	env.addFile(t, dept.ID, "人事規章.pdf", model.SentinelCategoryName)

	svc := NewDuplicateService(env.store.Files())
	reports, err := svc.CheckDuplicates(context.Background(), admin, []model.DuplicateCandidate{
		{Name: "人事規章.pdf", Size: 100, Type: "application/pdf"},
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.True(t, reports[0].IsDuplicate)
	require.NotNil(t, reports[0].DuplicateFile)
	require.Equal(t, "人事規章.pdf", reports[0].DuplicateFile.Name)
	// 完全同名的文件不会出现在相关文件中
	require.Empty(t, reports[0].RelatedFiles)
	require.False(t, reports[0].SuggestReplace)
}

func TestCheckDuplicates_RelatedByToken(t *testing.T) {
	env := newTestEnv(t)
	dept, admin := env.department(t, "人事部")
	env.addFile(t, dept.ID, "請假辦法.docx", model.SentinelCategoryName)
	env.addFile(t, dept.ID, "薪資表.xlsx", model.SentinelCategoryName)

	svc := NewDuplicateService(env.store.Files())
	reports, err := svc.CheckDuplicates(context.Background(), admin, []model.DuplicateCandidate{
		{Name: "請假辦法_v2.docx"},
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	r := reports[0]
	require.False(t, r.IsDuplicate)
	require.Nil(t, r.DuplicateFile)
	require.Len(t, r.RelatedFiles, 1)
	require.Equal(t, "請假辦法.docx", r.RelatedFiles[0].Name)
	require.True(t, r.SuggestReplace)
}

func TestCheckDuplicates_ExactAndRelatedTogether(t *testing.T) {
	env := newTestEnv(t)
	dept, admin := env.department(t, "財務部")
	env.addFile(t, dept.ID, "Budget-Report.pdf", model.SentinelCategoryName)
	env.addFile(t, dept.ID, "budget_2023.xlsx", model.SentinelCategoryName)
	env.addFile(t, dept.ID, "notes.txt", model.SentinelCategoryName)

	svc := NewDuplicateService(env.store.Files())
	reports, err := svc.CheckDuplicates(context.Background(), admin, []model.DuplicateCandidate{
		{Name: "Budget-Report.pdf"},
	})
	require.NoError(t, err)
	r := reports[0]
	require.True(t, r.IsDuplicate)
	require.Len(t, r.RelatedFiles, 1)
	require.Equal(t, "budget_2023.xlsx", r.RelatedFiles[0].Name)
}

func TestCheckDuplicates_ShortTokensIgnored(t *testing.T) {
	env := newTestEnv(t)
	dept, admin := env.department(t, "財務部")
	env.addFile(t, dept.ID, "ab cd.pdf", model.SentinelCategoryName)

	svc := NewDuplicateService(env.store.Files())
	reports, err := svc.CheckDuplicates(context.Background(), admin, []model.DuplicateCandidate{
		{Name: "ab-cd-xy.pdf"},
	})
	require.NoError(t, err)
	require.False(t, reports[0].IsDuplicate)
	require.Empty(t, reports[0].RelatedFiles)
	require.False(t, reports[0].SuggestReplace)
}

func TestCheckDuplicates_IsDeterministicAndTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	hr, hrAdmin := env.department(t, "人事部")
	fin, _ := env.department(t, "財務部")
	env.addFile(t, hr.ID, "員工手冊.pdf", model.SentinelCategoryName)
	env.addFile(t, hr.ID, "員工手冊_舊版.pdf", model.SentinelCategoryName)
	env.addFile(t, fin.ID, "員工手冊.pdf", model.SentinelCategoryName)

	svc := NewDuplicateService(env.store.Files())
	candidates := []model.DuplicateCandidate{{Name: "員工手冊.pdf"}, {Name: "新人訓練.pptx"}}

	first, err := svc.CheckDuplicates(context.Background(), hrAdmin, candidates)
	require.NoError(t, err)
	second, err := svc.CheckDuplicates(context.Background(), hrAdmin, candidates)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, hr.ID, first[0].DuplicateFile.DepartmentID)
	for _, f := range first[0].RelatedFiles {
		require.Equal(t, hr.ID, f.DepartmentID)
	}
	require.False(t, first[1].IsDuplicate)
}

func TestCheckDuplicates_RequiresTenant(t *testing.T) {
	env := newTestEnv(t)
	svc := NewDuplicateService(env.store.Files())

	_, err := svc.CheckDuplicates(context.Background(), nil, []model.DuplicateCandidate{{Name: "a.pdf"}})
	require.ErrorIs(t, err, model.ErrNotLoggedIn)

	_, err = svc.CheckDuplicates(context.Background(), env.superAdmin, []model.DuplicateCandidate{{Name: "a.pdf"}})
	require.ErrorIs(t, err, model.ErrNoDepartment)
}

func TestNormalizeBaseName(t *testing.T) {
	require.Equal(t, "請假辦法_v2", normalizeBaseName("請假辦法_v2.docx"))
	require.Equal(t, "archive.tar", normalizeBaseName("Archive.TAR.gz"))
	require.Equal(t, "readme", normalizeBaseName("README"))
	require.Equal(t, []string{"請假辦法"}, significantTokens("請假辦法_v2"))
	require.Equal(t, []string{"budget", "report"}, significantTokens("budget -  report"))
}
