package model

import "time"

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)

// RoleLevel 返回角色的权限等级：super_admin(2) > admin(1) > 匿名(0)。
func RoleLevel(role string) int {
	switch role {
	case RoleSuperAdmin:
		return 2
	case RoleAdmin:
		return 1
	default:
		return 0
	}
}

// User 对应于 'users' 表。Password 保存 bcrypt 哈希，不会序列化输出。
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"email"`
	Name         string    `gorm:"type:varchar(100)" json:"name"`
	Password     string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         string    `gorm:"type:varchar(20);not null" json:"role"`
	DepartmentID *uint     `gorm:"index" json:"departmentId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// Principal 是当前发起操作的身份，由认证层显式传入每个业务操作。
type Principal struct {
	ID           uint   `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	DepartmentID *uint  `json:"departmentId"`
}

// Principal 由用户记录构造会话身份。
func (u *User) Principal() *Principal {
	p := &Principal{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Role:     u.Role,
	}
	if u.DepartmentID != nil {
		id := *u.DepartmentID
		p.DepartmentID = &id
	}
	return p
}

// DisplayName 返回用于活动记录的显示名称。
func (p *Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}
