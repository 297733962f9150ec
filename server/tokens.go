package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hachizeus/ttip-backend/db/model"
)

// Claims for an admin session
type AdminClaims struct {
	Subject string `json:"subject"`
	jwt.RegisteredClaims
}

func (s *Service) GetJWTSecret() []byte {
	if len(s.config.JWTSecret) == 0 {
		return []byte("dev-secret-do-not-use-in-prod")
	}
	return []byte(s.config.JWTSecret)
}

func (s *Service) getJWTIssuer() string {
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		return "ttip-backend"
	}
	return issuer
}

// GenerateAdminToken creates a bearer token for the admin surface
func (s *Service) GenerateAdminToken(subject string) (string, error) {
	expiresAt := time.Now().Add(12 * time.Hour)
	claims := AdminClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.getJWTIssuer() + "-admin",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.GetJWTSecret())
	if err != nil {
		return "", err
	}

	// Persist to DB
	session := &model.AdminSession{
		Token:     tokenString,
		Subject:   subject,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}

	if err := s.db.SaveAdminSession(session); err != nil {
		return "", fmt.Errorf("failed to save admin session: %v", err)
	}

	return tokenString, nil
}

// ValidateAdminToken parses and validates an admin bearer token
func (s *Service) ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.GetJWTSecret(), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	// Check DB
	session, err := s.db.GetAdminSession(tokenString)
	if err != nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}

	return claims, nil
}

// authorizeAdmin guards the admin handlers. Writes the 401 itself and returns
// false if the request carries no valid token.
func (s *Service) authorizeAdmin(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.JSON(401, gin.H{"error": "Missing or invalid token"})
		return false
	}

	if _, err := s.ValidateAdminToken(strings.TrimPrefix(authHeader, "Bearer ")); err != nil {
		s.logger.Printf("Invalid admin token: %v", err)
		c.JSON(401, gin.H{"error": "Invalid token"})
		return false
	}

	return true
}
