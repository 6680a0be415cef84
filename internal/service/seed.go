package service

import (
	"context"
	"errors"

	"kb-admin-go/internal/config"
	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/hash"
	"kb-admin-go/pkg/log"

	"gorm.io/gorm"
)

// systemPrincipal 是启动初始化时使用的身份。
var systemPrincipal = &model.Principal{Username: "system", Name: "系統", Role: model.RoleSuperAdmin}

// Seed 在首次启动时创建超级管理员和初始部门，已存在的数据保持不变。
func Seed(ctx context.Context, cfg config.SeedConfig, userRepo repository.UserRepository, deptRepo repository.DepartmentRepository, admin AdminService) error {
	if !cfg.Enabled {
		return nil
	}

	if _, err := userRepo.FindByUsername(cfg.AdminUser); errors.Is(err, gorm.ErrRecordNotFound) {
		hashed, err := hash.HashPassword(cfg.AdminPass)
		if err != nil {
			return err
		}
		if err := userRepo.Create(&model.User{
			Username: cfg.AdminUser,
			Email:    cfg.AdminEmail,
			Name:     "系統管理員",
			Password: hashed,
			Role:     model.RoleSuperAdmin,
		}); err != nil {
			return err
		}
		log.Infof("[Seed] 已创建超级管理员: %s", cfg.AdminUser)
	} else if err != nil {
		return err
	}

	for _, name := range cfg.Departments {
		if _, err := deptRepo.FindByName(name); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if _, err := admin.CreateDepartment(ctx, systemPrincipal, DepartmentInput{Name: name}); err != nil {
			return err
		}
		log.Infof("[Seed] 已创建部门: %s", name)
	}
	return nil
}
