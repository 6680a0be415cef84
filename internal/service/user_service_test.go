package service

import (
	"context"
	"testing"

	"kb-admin-go/internal/config"
	"kb-admin-go/internal/model"
	"kb-admin-go/pkg/token"

	"github.com/stretchr/testify/require"
)

func seedConfig() config.SeedConfig {
	return config.SeedConfig{
		Enabled:     true,
		AdminUser:   "superadmin",
		AdminPass:   "superadmin123",
		AdminEmail:  "admin@example.com",
		Departments: []string{"人事部", "財務部"},
	}
}

func newUserEnv(t *testing.T) (*testEnv, UserService, *token.JWTManager) {
	t.Helper()
	env := newTestEnv(t)
	jwtManager := token.NewJWTManager("test-secret", 1)
	users := NewUserService(env.store.Users(), env.store.Departments(), env.store.Activities(), jwtManager)
	return env, users, jwtManager
}

func TestLogin(t *testing.T) {
	env, users, jwtManager := newUserEnv(t)
	require.NoError(t, Seed(context.Background(), seedConfig(), env.store.Users(), env.store.Departments(), env.admin))

	res, err := users.Login(context.Background(), "superadmin", "superadmin123")
	require.NoError(t, err)
	require.Equal(t, model.RoleSuperAdmin, res.User.Role)
	require.Nil(t, res.User.DepartmentID)

	claims, err := jwtManager.VerifyToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims.UserID)

	_, err = users.Login(context.Background(), "superadmin", "wrong")
	require.Equal(t, model.KindUnauthenticated, model.KindOf(err))
	_, err = users.Login(context.Background(), "nobody", "x")
	require.Equal(t, model.KindUnauthenticated, model.KindOf(err))
}

func TestCreateUser_Validation(t *testing.T) {
	env, users, _ := newUserEnv(t)
	ctx := context.Background()
	dept, _ := env.department(t, "人事部")

	u, err := users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr", Email: "hr@example.com", Name: "人事", Password: "pw123456",
		Role: model.RoleAdmin, DepartmentID: &dept.ID,
	})
	require.NoError(t, err)
	require.NotEqual(t, "pw123456", u.Password)

	_, err = users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr", Email: "other@example.com", Password: "pw", Role: model.RoleAdmin, DepartmentID: &dept.ID,
	})
	require.Equal(t, model.KindConflict, model.KindOf(err))

	_, err = users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr2", Email: "hr@example.com", Password: "pw", Role: model.RoleAdmin, DepartmentID: &dept.ID,
	})
	require.Equal(t, model.KindConflict, model.KindOf(err))

	_, err = users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr3", Email: "hr3@example.com", Password: "pw", Role: model.RoleAdmin,
	})
	require.Equal(t, model.KindValidation, model.KindOf(err))

	missing := uint(999)
	_, err = users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr4", Email: "hr4@example.com", Password: "pw", Role: model.RoleAdmin, DepartmentID: &missing,
	})
	require.Equal(t, model.KindNotFound, model.KindOf(err))

	_, err = users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr5", Email: "hr5@example.com", Password: "pw", Role: "owner",
	})
	require.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestUpdateUser_KeepsPasswordWhenEmpty(t *testing.T) {
	env, users, _ := newUserEnv(t)
	ctx := context.Background()
	dept, _ := env.department(t, "人事部")

	u, err := users.CreateUser(ctx, env.superAdmin, UserInput{
		Username: "hr", Email: "hr@example.com", Password: "first-pass", Role: model.RoleAdmin, DepartmentID: &dept.ID,
	})
	require.NoError(t, err)

	_, err = users.UpdateUser(ctx, env.superAdmin, u.ID, UserInput{
		Username: "hr", Email: "hr-new@example.com", Name: "人事主管", Role: model.RoleAdmin, DepartmentID: &dept.ID,
	})
	require.NoError(t, err)
	_, err = users.Login(ctx, "hr", "first-pass")
	require.NoError(t, err)

	_, err = users.UpdateUser(ctx, env.superAdmin, u.ID, UserInput{
		Username: "hr", Email: "hr-new@example.com", Password: "second-pass", Role: model.RoleAdmin, DepartmentID: &dept.ID,
	})
	require.NoError(t, err)
	_, err = users.Login(ctx, "hr", "first-pass")
	require.Error(t, err)
	_, err = users.Login(ctx, "hr", "second-pass")
	require.NoError(t, err)
}

func TestDeleteUser_Guards(t *testing.T) {
	env, users, _ := newUserEnv(t)
	ctx := context.Background()
	root := env.superAdmin

	other, err := users.CreateUser(ctx, root, UserInput{
		Username: "root2", Email: "root2@example.com", Password: "pw", Role: model.RoleSuperAdmin,
	})
	require.NoError(t, err)

	self := &model.Principal{ID: other.ID, Username: other.Username, Role: model.RoleSuperAdmin}
	err = users.DeleteUser(ctx, self, other.ID)
	require.Contains(t, model.MessageOf(err), "目前登入")

	err = users.DeleteUser(ctx, root, other.ID)
	require.Contains(t, model.MessageOf(err), "超級管理員")

	err = users.DeleteUser(ctx, root, 12345)
	require.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestListUsers_Paging(t *testing.T) {
	env, users, _ := newUserEnv(t)
	ctx := context.Background()
	hr, _ := env.department(t, "人事部")
	fin, _ := env.department(t, "財務部")

	for i, d := range []uint{hr.ID, hr.ID, hr.ID, fin.ID} {
		id := d
		_, err := users.CreateUser(ctx, env.superAdmin, UserInput{
			Username: string(rune('a'+i)) + "_user", Email: string(rune('a'+i)) + "@example.com",
			Password: "pw", Role: model.RoleAdmin, DepartmentID: &id,
		})
		require.NoError(t, err)
	}

	page, err := users.ListUsers(ctx, env.superAdmin, &hr.ID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), page.TotalElements)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	require.Equal(t, "人事部", page.Content[0].DepartmentName)

	page, err = users.ListUsers(ctx, env.superAdmin, &hr.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)

	page, err = users.ListUsers(ctx, env.superAdmin, nil, 5, 2)
	require.NoError(t, err)
	require.Empty(t, page.Content)
	require.Equal(t, int64(4), page.TotalElements)
}
