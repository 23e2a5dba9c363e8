package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/response"
)

// MerchantClaims is the dashboard bearer token payload.
type MerchantClaims struct {
	MerchantID string `json:"merchant_id"`
	StaffID    string `json:"staff_id"`
	jwt.StandardClaims
}

var errMissingMerchant = errors.New("token has no merchant_id")

// ParseMerchantToken validates an HS256 token and returns its claims.
func ParseMerchantToken(tokenString string, secret []byte) (*MerchantClaims, error) {
	claims := &MerchantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.MerchantID == "" {
		return nil, errMissingMerchant
	}
	return claims, nil
}

// AuthMiddleware authenticates the merchant principal from the
// Authorization bearer token. Handlers read the ids with MerchantID/StaffID.
func AuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" || len(key) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := ParseMerchantToken(tokenString, key)
		if err != nil {
			logctx.FromGin(c, base).Infow("auth_rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid bearer token"))
			return
		}

		c.Set(logctx.KeyMerchantID, claims.MerchantID)
		c.Set(logctx.KeyStaffID, claims.StaffID)
		ctx := context.WithValue(c.Request.Context(), logctx.KeyMerchantID, claims.MerchantID)
		ctx = context.WithValue(ctx, logctx.KeyStaffID, claims.StaffID)
		c.Request = c.Request.WithContext(ctx)
		setLogger(c, logctx.FromGin(c, base).With("merchant_id", claims.MerchantID, "staff_id", claims.StaffID))

		c.Next()
	}
}

func MerchantID(c *gin.Context) string { return c.GetString(logctx.KeyMerchantID) }

func StaffID(c *gin.Context) string { return c.GetString(logctx.KeyStaffID) }
