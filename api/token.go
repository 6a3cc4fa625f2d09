package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mintDeploymentToken issues the deployment-scoped JWT stored on the row
// at creation. Presenting it re-authorizes a stream reconnect for that
// deployment's trade feed without exposing any other deployment's history.
func mintDeploymentToken(secret []byte, deploymentID, userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub":           userID,
		"deployment_id": deploymentID,
		"iat":           time.Now().Unix(),
		"exp":           time.Now().Add(30 * 24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verifyDeploymentToken checks the signature and returns the deployment id
// the token was minted for.
func verifyDeploymentToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid deployment token")
	}
	deploymentID, _ := claims["deployment_id"].(string)
	if deploymentID == "" {
		return "", fmt.Errorf("deployment token missing deployment_id")
	}
	return deploymentID, nil
}
