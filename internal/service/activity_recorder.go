package service

import (
	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/log"
)

// recordTenant 追加一条部门活动；审计写入失败不影响已完成的业务操作。
func recordTenant(repo repository.ActivityRepository, deptID uint, activity model.Activity) {
	activity.Scope = model.ScopeTenant
	activity.DepartmentID = &deptID
	if err := repo.Append(&activity); err != nil {
		log.Warnf("[Activity] 记录部门活动失败, type: %s, dept: %d, error: %v", activity.Type, deptID, err)
	}
}

// recordSystem 追加一条系统活动，deptID 为空表示与具体部门无关。
func recordSystem(repo repository.ActivityRepository, deptID *uint, activity model.Activity) {
	activity.Scope = model.ScopeSystem
	activity.DepartmentID = deptID
	if err := repo.Append(&activity); err != nil {
		log.Warnf("[Activity] 记录系统活动失败, type: %s, error: %v", activity.Type, err)
	}
}
