package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

const (
	contextTokenKey     = "userToken"
	contextPrincipalKey = "principal"
	tokenAudience       = "Adesua"
)

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the user id; Role decides the visibility of every request.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

func NewClaims(conf *core.Config, p scope.Principal) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.UserID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role: string(p.Role),
	}
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// principalMiddleware turns the verified claims into the scope.Principal of the request.
func principalMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		role, err := scope.ParseRole(claims.Role)
		if err != nil || claims.Subject == "" {
			return errUnknownIdentity
		}
		ctx.Set(contextPrincipalKey, scope.Principal{Role: role, UserID: claims.Subject})
		return next(ctx)
	}
}

func getContextPrincipal(ctx echo.Context) (scope.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(scope.Principal); ok {
		return p, nil
	}
	return scope.Principal{}, errUnauthorized
}
