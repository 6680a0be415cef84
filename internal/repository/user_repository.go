package repository

import (
	"kb-admin-go/internal/model"

	"gorm.io/gorm"
)

// UserRepository 负责账号的读写，用户名和邮箱由唯一索引保证不重复。
type UserRepository interface {
	Create(user *model.User) error
	FindByID(userID uint) (*model.User, error)
	FindByUsername(username string) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	FindAll() ([]model.User, error)
	FindByDepartment(deptID uint) ([]model.User, error)
	Count() (int64, error)
	CountByDepartment(deptID uint) (int64, error)
	Update(user *model.User) error
	Delete(userID uint) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 返回基于 gorm 的 UserRepository。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername 用于登录和唯一性校验。
func (r *userRepository) FindByUsername(username string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAll 按 ID 升序返回全部账号，由服务层分页。
func (r *userRepository) FindAll() ([]model.User, error) {
	var users []model.User
	err := r.db.Order("id asc").Find(&users).Error
	return users, err
}

// FindByDepartment 返回某个部门的所有用户。
func (r *userRepository) FindByDepartment(deptID uint) ([]model.User, error) {
	var users []model.User
	err := r.db.Where("department_id = ?", deptID).Order("id asc").Find(&users).Error
	return users, err
}

func (r *userRepository) Count() (int64, error) {
	var total int64
	err := r.db.Model(&model.User{}).Count(&total).Error
	return total, err
}

// CountByDepartment 统计部门下的用户数，用于删除部门前的引用检查。
func (r *userRepository) CountByDepartment(deptID uint) (int64, error) {
	var total int64
	err := r.db.Model(&model.User{}).Where("department_id = ?", deptID).Count(&total).Error
	return total, err
}

// Update 整行保存，调用方负责先读出再修改。
func (r *userRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *userRepository) Delete(userID uint) error {
	res := r.db.Delete(&model.User{}, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
