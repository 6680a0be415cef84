// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// PrincipalKey 是 AuthMiddleware 在 gin 上下文中存放 *model.Principal 的键。
const PrincipalKey = "principal"

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "success": false, "message": message})
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 取自 Authorization 头；WebSocket 握手无法设置请求头时可使用 token 查询参数。
// 每次请求都会按 token 中的用户 ID 重新加载用户，角色和所属部门以存储中的记录为准。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 优先使用 Authorization 请求头
		var tokenString string
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Token 以 "Bearer <token>" 的形式提供
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				abort(c, http.StatusUnauthorized, "無效的授權標頭格式")
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		} else {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, model.ErrNotLoggedIn.Message)
			return
		}

		// 校验签名和有效期
		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "無效或已過期的登入憑證")
			return
		}

		// 用户可能已被删除或调到其他部门，不能直接信任 token 中的身份
		user, err := userService.GetProfile(c.Request.Context(), claims.Principal())
		if err != nil {
			if model.KindOf(err) == model.KindNotFound {
				abort(c, http.StatusUnauthorized, "使用者不存在")
				return
			}
			log.Errorf("[AuthMiddleware] 加载用户失败, userId: %d, error: %v", claims.UserID, err)
			abort(c, http.StatusInternalServerError, model.MessageOf(err))
			return
		}
		// ID 相同但用户名不同说明账号已被替换
		if user.Username != claims.Username {
			abort(c, http.StatusUnauthorized, "使用者不存在")
			return
		}

		// 将由存储记录构造的身份存入上下文，供后续处理函数使用
		c.Set(PrincipalKey, user.Principal())
		c.Next()
	}
}

// CurrentPrincipal 返回 AuthMiddleware 写入的会话身份，未登录时返回 nil。
func CurrentPrincipal(c *gin.Context) *model.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}

// RequireRole 在路由层应用权限检查，必须在 AuthMiddleware 之后使用。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		result := service.CheckPermission(p, role)
		if !result.HasPermission {
			status := http.StatusForbidden
			if p == nil {
				status = http.StatusUnauthorized
			}
			abort(c, status, result.Message)
			return
		}
		c.Next()
	}
}
