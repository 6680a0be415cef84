package service

import (
	"fmt"

	"kb-admin-go/internal/model"
)

var roleLabels = map[string]string{
	model.RoleSuperAdmin: "超級管理員",
	model.RoleAdmin:      "管理員",
}

// PermissionResult 是权限检查的结果，HasPermission 为 false 时 Message 说明原因。
type PermissionResult struct {
	HasPermission bool   `json:"hasPermission"`
	Message       string `json:"message,omitempty"`
}

// CheckPermission 比较 principal 的角色等级与 requiredRole，没有任何副作用。
func CheckPermission(p *model.Principal, requiredRole string) PermissionResult {
	if p == nil {
		return PermissionResult{Message: model.ErrNotLoggedIn.Message}
	}
	if model.RoleLevel(p.Role) < model.RoleLevel(requiredRole) {
		return PermissionResult{Message: fmt.Sprintf("權限不足，需要%s權限", roleLabels[requiredRole])}
	}
	return PermissionResult{HasPermission: true}
}

// authorize 将 CheckPermission 的结果转换为业务错误。
func authorize(p *model.Principal, requiredRole string) error {
	if p == nil {
		return model.ErrNotLoggedIn
	}
	if res := CheckPermission(p, requiredRole); !res.HasPermission {
		return model.NewError(model.KindForbidden, "%s", res.Message)
	}
	return nil
}

// tenantOf 返回 principal 所属的部门，用于所有部门范围内的查询和修改。
func tenantOf(p *model.Principal) (uint, error) {
	if p == nil {
		return 0, model.ErrNotLoggedIn
	}
	if p.DepartmentID == nil {
		return 0, model.ErrNoDepartment
	}
	return *p.DepartmentID, nil
}

// authorizeTenant 先检查角色再解析部门。
func authorizeTenant(p *model.Principal, requiredRole string) (uint, error) {
	if err := authorize(p, requiredRole); err != nil {
		return 0, err
	}
	return tenantOf(p)
}
