package echoapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/auth"
	"github.com/WebgateSystems/akademy/core/user"
)

const (
	jwtContextKey  = "userToken"
	contextUserKey = "user"

	accessTokenCookie = "access_token"
)

// newJWTMiddleware returns the JWT auth middleware; the token is read from the
// Authorization header or, for browser sessions, the access_token cookie.
func newJWTMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		TokenLookup:   "header:Authorization,cookie:" + accessTokenCookie,
		AuthScheme:    "Bearer",
		Claims:        new(auth.Claims),
	})
}

func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*auth.Claims); ok {
			return *claims, nil
		}
	}
	return auth.Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.ServiceInterface, clms ...auth.Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims auth.Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}

func refreshToken(ctx echo.Context, svc user.ServiceInterface, conf *core.Config) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.Active() {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := auth.GetUserClaims(usr, conf, claims.OrigIssuedAt)
	token, err := auth.GenerateToken(newClaims, conf.SecretKey)
	return token, errors.Wrap(err, "generating token")
}

func setAccessTokenCookie(ctx echo.Context, token string, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(conf.Server.JWTExpirationDelta),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
