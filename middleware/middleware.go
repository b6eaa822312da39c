package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"carsucart/globals"
	"carsucart/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// JWT claims
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

// Auth verifies bearer tokens issued by the account service.
type Auth struct {
	secret []byte
}

func NewAuth(secret []byte) *Auth {
	return &Auth{secret: secret}
}

func (a *Auth) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" && websocket.IsWebSocketUpgrade(r) {
			// browsers cannot set headers on the upgrade request
			if t := r.URL.Query().Get("token"); t != "" {
				tokenString = "Bearer " + t
			}
		}
		if tokenString == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing token")
			return
		}

		claims, err := a.ValidateJWT(tokenString)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(withClaims(r.Context(), claims)), ps)
	}
}

func (a *Auth) OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if claims, err := a.ValidateJWT(r.Header.Get("Authorization")); err == nil {
			r = r.WithContext(withClaims(r.Context(), claims))
		}
		// Proceed regardless of token state
		next(w, r, ps)
	}
}

// RequireRole authenticates the caller and rejects those without any of roles.
func (a *Auth) RequireRole(next httprouter.Handle, roles ...string) httprouter.Handle {
	return a.Authenticate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !utils.HasRole(r, roles...) {
			utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r, ps)
	})
}

func (a *Auth) ValidateJWT(tokenString string) (*Claims, error) {
	if !strings.HasPrefix(tokenString, "Bearer ") || len(tokenString) < 8 {
		return nil, fmt.Errorf("invalid token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString[7:], claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("unauthorized: token carries no user")
	}
	return claims, nil
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, globals.UserIDKey, claims.UserID)
	return context.WithValue(ctx, globals.RoleKey, claims.Role)
}

// Middleware wraps a route handler.
type Middleware func(httprouter.Handle) httprouter.Handle

// Chain composes mws; the first one runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(final httprouter.Handle) httprouter.Handle {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}

// Roles is RequireRole as a Middleware.
func (a *Auth) Roles(roles ...string) Middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return a.RequireRole(next, roles...)
	}
}
