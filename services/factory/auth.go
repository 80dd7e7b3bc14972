package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	actorContextKey = "actor"
	roleContextKey  = "role"
	actorHeader     = "X-User-Name"

	RoleFactoryManager = "factory_manager"
	RoleAdmin          = "admin"
)

// AuthMiddleware identifica quem chama a API. Com segredo configurado, um Bearer token inválido é recusado;
// sem token, o nome vem do cabeçalho X-User-Name.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(secret) == 0 || authHeader == "" {
			if name := strings.TrimSpace(c.GetHeader(actorHeader)); name != "" {
				c.Set(actorContextKey, name)
			}
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := VerifyToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		if name, ok := claims["name"].(string); ok && name != "" {
			c.Set(actorContextKey, name)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(roleContextKey, role)
		}
		c.Next()
	}
}

// actorFrom devolve o nome de quem chamou, ou "" se desconhecido
func actorFrom(c *gin.Context) string {
	return c.GetString(actorContextKey)
}

// RequireRole restringe a rota aos papéis informados. Só vale para chamadas autenticadas por token;
// chamadas identificadas pelo cabeçalho X-User-Name não carregam papel e passam.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, authenticated := c.Get(roleContextKey)
		if !authenticated {
			c.Next()
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
	}
}

// VerifyToken valida assinatura, algoritmo e expiração
func VerifyToken(secret []byte, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
