package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
)

func authRouter(resolve IdentityResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Authenticate(resolve))
	r.GET("/me", func(c *gin.Context) {
		id := IdentityFrom(c)
		if id == nil {
			c.JSON(http.StatusOK, gin.H{"anonymous": true, "uid": userIDFrom(c)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": id.Username, "uid": userIDFrom(c)})
	})
	return r
}

func TestAuthenticate_NoTokenIsAnonymous(t *testing.T) {
	called := false
	r := authRouter(func(context.Context, string) (*auth.Identity, error) {
		called = true
		return nil, nil
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	body := decodeBody(t, w)
	if w.Code != http.StatusOK || body["anonymous"] != true || body["uid"] != float64(0) {
		t.Fatalf("status=%d body=%v", w.Code, body)
	}
	if called {
		t.Fatalf("resolver must not run without a token")
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	var got string
	r := authRouter(func(_ context.Context, token string) (*auth.Identity, error) {
		got = token
		return &auth.Identity{UserID: 4, Username: "eddie", Role: domain.RoleEditor}, nil
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	r.ServeHTTP(w, req)

	body := decodeBody(t, w)
	if body["username"] != "eddie" || body["uid"] != float64(4) {
		t.Fatalf("body=%v", body)
	}
	if got != "abc.def.ghi" {
		t.Fatalf("resolver got token %q", got)
	}
}

func TestAuthenticate_InvalidTokenIs401(t *testing.T) {
	r := authRouter(func(context.Context, string) (*auth.Identity, error) {
		return nil, errors.New("expired")
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != "unauthorized" || body["request_id"] == "" {
		t.Fatalf("body=%v", body)
	}
}

func TestIdentityFrom_WrongType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyIdentity, "root")
	c.Set(ctxKeyUserID, "1")
	if IdentityFrom(c) != nil || userIDFrom(c) != 0 {
		t.Fatalf("wrong-typed values must read as anonymous")
	}
}
