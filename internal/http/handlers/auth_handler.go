// Account HTTP handlers.
//
//   - POST  /auth/login            (issue a session token)
//   - GET   /auth/me               (current account)
//   - GET   /auth/users            (admin: list accounts)
//   - POST  /auth/users            (admin: create an account)
//   - PATCH /auth/users/{id}/role  (admin: change a role)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/services"
)

// LoginRequest is the JSON payload of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"ada"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// CreateUserRequest is the JSON payload of POST /auth/users.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required" example:"eddie"`
	Password string `json:"password" binding:"required" example:"s3cret-pass"`
	Nickname string `json:"nickname" example:"Eddie"`
	// Role defaults to viewer.
	Role string `json:"role" example:"editor"`
}

// SetRoleRequest is the JSON payload of PATCH /auth/users/{id}/role.
type SetRoleRequest struct {
	Role string `json:"role" binding:"required" example:"chatter"`
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Exchanges credentials for a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.LoginRequest  true  "Credentials"
// @Success     200   {object} services.Session
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     401   {object} handlers.ErrorResponse "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}
	sess, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// Me godoc
// @ID          me
// @Summary     Current account
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} domain.User
// @Failure     401  {object} handlers.ErrorResponse "Not authenticated"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.accounts.Me(c.Request.Context(), identity(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List accounts
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.User
// @Failure     401  {object} handlers.ErrorResponse "Not authenticated"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Router      /auth/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context(), identity(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}

// CreateUser godoc
// @ID          createUser
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body     handlers.CreateUserRequest  true  "Account"
// @Success     201   {object} domain.User
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     403   {object} handlers.ErrorResponse "Not an admin"
// @Failure     409   {object} handlers.ErrorResponse "Username taken"
// @Router      /auth/users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}
	u, err := h.accounts.CreateUser(c.Request.Context(), identity(c), services.NewUserInput{
		Username: req.Username,
		Password: req.Password,
		Nickname: req.Nickname,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// SetRole godoc
// @ID          setUserRole
// @Summary     Change an account's role
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path     int                      true  "User ID"
// @Param       body  body     handlers.SetRoleRequest  true  "New role"
// @Success     200   {object} domain.User
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     403   {object} handlers.ErrorResponse "Not an admin"
// @Failure     404   {object} handlers.ErrorResponse "User not found"
// @Router      /auth/users/{id}/role [patch]
func (h *Handlers) SetRole(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role required")
		return
	}
	u, err := h.accounts.SetRole(c.Request.Context(), identity(c), id, req.Role)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
