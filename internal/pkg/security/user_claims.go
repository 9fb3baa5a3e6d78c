package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWTSecret         string = "CampusLink"
	JWTExpirationTime        = time.Hour * 24
)

// UserClaims Token 中携带的业务信息
// 签发在账号服务侧完成，本服务只做校验
type UserClaims struct {
	UserID uint64 `json:"user_id"`
	jwt.RegisteredClaims
}
