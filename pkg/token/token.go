package token

import (
	"errors"
	"fmt"
	"time"

	"alapio/config"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Service 提供会话令牌的签发与校验
// 使用对称密钥 HS256，Subject 存用户ID
// 身份本身由外部认证方核验，令牌只是登录后WebSocket握手的快捷凭证，
// 没有令牌的连接仍然可以通过 join 事件绑定身份

type Service struct {
	secretKey   []byte
	issuer      string
	expireAfter time.Duration
}

// Claims 令牌声明载荷
type Claims struct {
	Username string `json:"username,omitempty"`
	jwtv5.RegisteredClaims
}

// NewService 创建令牌服务
func NewService(cfg config.TokenConfig) *Service {
	return &Service{
		secretKey:   []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		expireAfter: cfg.ExpireTime,
	}
}

// Generate 为用户签发会话令牌
func (s *Service) Generate(userID, username string) (string, error) {
	if userID == "" {
		return "", errors.New("userID is required")
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.expireAfter)),
		},
	}

	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// Validate 校验令牌并返回其绑定的用户ID
func (s *Service) Validate(tokenString string) (string, error) {
	claims := &Claims{}
	parsed, err := jwtv5.ParseWithClaims(tokenString, claims, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名算法: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("令牌校验失败: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("令牌无效")
	}
	return claims.Subject, nil
}
