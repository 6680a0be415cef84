// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"kb-admin-go/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey      []byte        // secretKey 用于签名和验证 token 的密钥
	accessTokenDur time.Duration // accessTokenDur 定义了 access token 的有效期
}

// CustomClaims 定义了我们想要在 JWT 中存储的自定义数据。
// DepartmentID 为空表示 super_admin 没有所属部门。
type CustomClaims struct {
	UserID       uint   `json:"userId"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	DepartmentID *uint  `json:"departmentId,omitempty"`
	jwt.RegisteredClaims
}

// Principal 将 claims 还原为会话身份。
func (c *CustomClaims) Principal() *model.Principal {
	return &model.Principal{
		ID:           c.UserID,
		Username:     c.Username,
		Name:         c.Name,
		Role:         c.Role,
		DepartmentID: c.DepartmentID,
	}
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, accessTokenExpireHours int) *JWTManager {
	return &JWTManager{
		secretKey:      []byte(secret),
		accessTokenDur: time.Hour * time.Duration(accessTokenExpireHours),
	}
}

// GenerateToken 为给定身份生成一个新的 access token。
func (m *JWTManager) GenerateToken(p *model.Principal) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID:       p.ID,
		Username:     p.Username,
		Name:         p.Name,
		Role:         p.Role,
		DepartmentID: p.DepartmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	// 使用 HS256 签名方法创建新的 token 对象
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串。
// 签名不匹配或已过期时返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
