package http

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"auth-api/internal/domain"
	"auth-api/internal/service"
)

// Handler wires HTTP routes to the auth service.
type Handler struct {
	auth service.AuthService
}

func NewHandler(auth service.AuthService) *Handler {
	return &Handler{auth: auth}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	router.POST("/register", h.register)
	router.POST("/login", h.login)
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	protected := router.Group("/", bearerToken())
	{
		protected.GET("/show", h.show)
		protected.GET("/logout", h.logout)
	}
}

type registerRequest struct {
	Name                 string `json:"name" binding:"required"`
	Email                string `json:"email" binding:"required,email"`
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  http.StatusBadRequest,
			"message": "validation failed",
			"errors":  bindingErrors(err),
		})
		return
	}

	_, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  http.StatusBadRequest,
				"message": "validation failed",
				"errors":  verr.Fields,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "registration failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  http.StatusOK,
		"message": "user registered successfully",
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// same shape and status as a wrong password; the login surface
		// never explains what exactly was off
		unauthorized(c, "invalid credentials")
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			unauthorized(c, "invalid credentials")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  false,
			"message": "login failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  true,
		"message": "user logged in successfully",
		"token":   token,
	})
}

func (h *Handler) show(c *gin.Context) {
	user, err := h.auth.Profile(c.Request.Context(), tokenFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			unauthorized(c, "unauthorized")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  false,
			"message": "profile retrieval failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  true,
		"message": "profile data",
		"data":    userToResponse(user),
	})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), tokenFromContext(c)); err != nil {
		unauthorized(c, "unauthorized")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  true,
		"message": "user logged out successfully",
	})
}

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"status":  false,
		"message": message,
	})
}

func userToResponse(user *domain.User) userResponse {
	return userResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	}
}

// bindingErrors flattens gin binding failures into per-field messages keyed
// by the json field name.
func bindingErrors(err error) map[string]string {
	fields := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["body"] = "request body must be valid JSON"
		return fields
	}

	for _, fe := range verrs {
		name := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[name] = name + " is required"
		case "email":
			fields[name] = name + " must be a valid email address"
		case "eqfield":
			fields[name] = "password confirmation does not match"
		default:
			fields[name] = name + " is invalid"
		}
	}
	return fields
}

func toSnake(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
