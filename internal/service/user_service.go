package service

import (
	"context"
	"errors"
	"strings"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/hash"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/token"

	"gorm.io/gorm"
)

// UserInput 是创建和编辑用户的表单，编辑时 Password 为空表示不修改。
type UserInput struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Name         string `json:"name"`
	Password     string `json:"password"`
	Role         string `json:"role" binding:"required"`
	DepartmentID *uint  `json:"departmentId"`
}

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID         uint            `json:"userId"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Role           string          `json:"role"`
	DepartmentID   *uint           `json:"departmentId"`
	DepartmentName string          `json:"departmentName"`
	CreatedAt      model.LocalTime `json:"createdAt"`
}

// LoginResult 是登录成功后返回给前端的内容。
type LoginResult struct {
	AccessToken string           `json:"accessToken"`
	User        *model.Principal `json:"user"`
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	GetProfile(ctx context.Context, p *model.Principal) (*model.User, error)
	// ListUsers 分页列出用户，deptID 为空时列出全部。
	ListUsers(ctx context.Context, p *model.Principal, deptID *uint, page, size int) (*UserListResponse, error)
	CreateUser(ctx context.Context, p *model.Principal, in UserInput) (*model.User, error)
	UpdateUser(ctx context.Context, p *model.Principal, userID uint, in UserInput) (*model.User, error)
	DeleteUser(ctx context.Context, p *model.Principal, userID uint) error
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo     repository.UserRepository
	deptRepo     repository.DepartmentRepository
	activityRepo repository.ActivityRepository
	jwtManager   *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, deptRepo repository.DepartmentRepository, activityRepo repository.ActivityRepository, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:     userRepo,
		deptRepo:     deptRepo,
		activityRepo: activityRepo,
		jwtManager:   jwtManager,
	}
}

var errInvalidCredentials = model.NewError(model.KindUnauthenticated, "帳號或密碼錯誤")

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, model.WrapInternal("登入失敗", err)
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		log.Warnf("[UserService] 登录密码错误, username: %s", username)
		return nil, errInvalidCredentials
	}

	principal := user.Principal()
	accessToken, err := s.jwtManager.GenerateToken(principal)
	if err != nil {
		return nil, model.WrapInternal("登入失敗", err)
	}
	log.Infof("[UserService] 用户登录成功, username: %s", username)
	return &LoginResult{AccessToken: accessToken, User: principal}, nil
}

func (s *userService) GetProfile(ctx context.Context, p *model.Principal) (*model.User, error) {
	if p == nil {
		return nil, model.ErrNotLoggedIn
	}
	user, err := s.userRepo.FindByID(p.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewError(model.KindNotFound, "找不到該使用者")
		}
		return nil, model.WrapInternal("查詢使用者失敗", err)
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, p *model.Principal, deptID *uint, page, size int) (*UserListResponse, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var (
		users []model.User
		err   error
	)
	if deptID != nil {
		users, err = s.userRepo.FindByDepartment(*deptID)
	} else {
		users, err = s.userRepo.FindAll()
	}
	if err != nil {
		return nil, model.WrapInternal("查詢使用者失敗", err)
	}

	deptNames := make(map[uint]string)
	if depts, err := s.deptRepo.FindAll(); err == nil {
		for _, d := range depts {
			deptNames[d.ID] = d.Name
		}
	}

	total := len(users)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := min(start+size, total)

	content := make([]UserDetailResponse, 0, end-start)
	for _, u := range users[start:end] {
		item := UserDetailResponse{
			UserID:       u.ID,
			Username:     u.Username,
			Email:        u.Email,
			Name:         u.Name,
			Role:         u.Role,
			DepartmentID: u.DepartmentID,
			CreatedAt:    model.LocalTime(u.CreatedAt),
		}
		if u.DepartmentID != nil {
			item.DepartmentName = deptNames[*u.DepartmentID]
		}
		content = append(content, item)
	}

	return &UserListResponse{
		Content:       content,
		TotalElements: int64(total),
		TotalPages:    (total + size - 1) / size,
		Size:          size,
		Number:        page,
	}, nil
}

// validate 检查角色、部门以及用户名和邮箱的全局唯一性，selfID 为 0 表示新用户。
func (s *userService) validate(in *UserInput, selfID uint) error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" {
		return model.NewError(model.KindValidation, "帳號與電子郵件不可為空")
	}

	switch in.Role {
	case model.RoleSuperAdmin:
		in.DepartmentID = nil
	case model.RoleAdmin:
		if in.DepartmentID == nil {
			return model.NewError(model.KindValidation, "管理員必須指定所屬部門")
		}
		if _, err := s.deptRepo.FindByID(*in.DepartmentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.NewError(model.KindNotFound, "找不到該部門")
			}
			return model.WrapInternal("查詢部門失敗", err)
		}
	default:
		return model.NewError(model.KindValidation, "無效的角色: %s", in.Role)
	}

	if u, err := s.userRepo.FindByUsername(in.Username); err == nil && u.ID != selfID {
		return model.NewError(model.KindConflict, "帳號「%s」已存在", in.Username)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WrapInternal("查詢使用者失敗", err)
	}
	if u, err := s.userRepo.FindByEmail(in.Email); err == nil && u.ID != selfID {
		return model.NewError(model.KindConflict, "電子郵件「%s」已被使用", in.Email)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WrapInternal("查詢使用者失敗", err)
	}
	return nil
}

func (s *userService) CreateUser(ctx context.Context, p *model.Principal, in UserInput) (*model.User, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := s.validate(&in, 0); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, model.NewError(model.KindValidation, "密碼不可為空")
	}
	hashedPassword, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, model.WrapInternal("新增使用者失敗", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		Name:         in.Name,
		Password:     hashedPassword,
		Role:         in.Role,
		DepartmentID: in.DepartmentID,
	}
	if err := s.userRepo.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.NewError(model.KindConflict, "帳號或電子郵件已存在")
		}
		log.Errorf("[UserService] 创建用户失败, username: %s, error: %v", in.Username, err)
		return nil, model.WrapInternal("新增使用者失敗", err)
	}
	recordSystem(s.activityRepo, user.DepartmentID, model.Activity{
		Type:     model.ActivityUserAdd,
		UserName: user.Username,
		Actor:    p.DisplayName(),
	})
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, p *model.Principal, userID uint, in UserInput) (*model.User, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewError(model.KindNotFound, "找不到該使用者")
		}
		return nil, model.WrapInternal("查詢使用者失敗", err)
	}
	if err := s.validate(&in, userID); err != nil {
		return nil, err
	}

	user.Username = in.Username
	user.Email = in.Email
	user.Name = in.Name
	user.Role = in.Role
	user.DepartmentID = in.DepartmentID
	if in.Password != "" {
		if user.Password, err = hash.HashPassword(in.Password); err != nil {
			return nil, model.WrapInternal("更新使用者失敗", err)
		}
	}
	if err := s.userRepo.Update(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.NewError(model.KindConflict, "帳號或電子郵件已存在")
		}
		return nil, model.WrapInternal("更新使用者失敗", err)
	}
	recordSystem(s.activityRepo, user.DepartmentID, model.Activity{
		Type:     model.ActivityUserUpdate,
		UserName: user.Username,
		Actor:    p.DisplayName(),
	})
	return user, nil
}

// DeleteUser 不允许删除当前登录的用户以及任何超级管理员。
func (s *userService) DeleteUser(ctx context.Context, p *model.Principal, userID uint) error {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return err
	}
	if userID == p.ID {
		return model.NewError(model.KindValidation, "無法刪除目前登入的使用者")
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NewError(model.KindNotFound, "找不到該使用者")
		}
		return model.WrapInternal("查詢使用者失敗", err)
	}
	if user.Role == model.RoleSuperAdmin {
		return model.NewError(model.KindValidation, "無法刪除超級管理員")
	}
	if err := s.userRepo.Delete(userID); err != nil {
		return model.WrapInternal("刪除使用者失敗", err)
	}
	recordSystem(s.activityRepo, user.DepartmentID, model.Activity{
		Type:     model.ActivityUserDelete,
		UserName: user.Username,
		Actor:    p.DisplayName(),
	})
	log.Infof("[UserService] 用户已删除, id: %d, username: %s", userID, user.Username)
	return nil
}
