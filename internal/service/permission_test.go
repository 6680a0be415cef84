package service

import (
	"testing"

	"kb-admin-go/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCheckPermission(t *testing.T) {
	dept := uint(1)
	superAdmin := &model.Principal{ID: 1, Role: model.RoleSuperAdmin}
	admin := &model.Principal{ID: 2, Role: model.RoleAdmin, DepartmentID: &dept}
	viewer := &model.Principal{ID: 3, Role: "viewer", DepartmentID: &dept}

	tests := []struct {
		name     string
		p        *model.Principal
		required string
		want     bool
	}{
		{"super admin passes admin gate", superAdmin, model.RoleAdmin, true},
		{"super admin passes super gate", superAdmin, model.RoleSuperAdmin, true},
		{"admin passes admin gate", admin, model.RoleAdmin, true},
		{"admin fails super gate", admin, model.RoleSuperAdmin, false},
		{"unknown role fails admin gate", viewer, model.RoleAdmin, false},
		{"anonymous fails", nil, model.RoleAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckPermission(tt.p, tt.required)
			require.Equal(t, tt.want, res.HasPermission)
			if !tt.want {
				require.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestAuthorizeTenant(t *testing.T) {
	_, err := authorizeTenant(nil, model.RoleAdmin)
	require.Equal(t, model.KindUnauthenticated, model.KindOf(err))

	_, err = authorizeTenant(&model.Principal{ID: 1, Role: model.RoleSuperAdmin}, model.RoleAdmin)
	require.ErrorIs(t, err, model.ErrNoDepartment)

	_, err = authorizeTenant(&model.Principal{ID: 2, Role: "viewer"}, model.RoleAdmin)
	require.Equal(t, model.KindForbidden, model.KindOf(err))
	require.Contains(t, model.MessageOf(err), "權限不足")

	dept := uint(4)
	got, err := authorizeTenant(&model.Principal{ID: 3, Role: model.RoleAdmin, DepartmentID: &dept}, model.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, dept, got)
}
