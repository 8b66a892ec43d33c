// Current-user HTTP handlers.
//
//   - GET /me         (profile of the authenticated user)
//   - PUT /me/locale  (change report language)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-report-backend/internal/domain"
	"github.com/tbourn/go-report-backend/internal/services"
)

// UpdateLocaleRequest is the JSON payload for changing the user's locale.
type UpdateLocaleRequest struct {
	// Locale is a BCP-47 language tag.
	Locale string `json:"locale" binding:"required" example:"ru"`
}

// MeResponse wraps the current user.
type MeResponse struct {
	OK   bool        `json:"ok" example:"true"`
	User domain.User `json:"user"`
}

// GetMe godoc
// @ID          getMe
// @Summary     Current user
// @Tags        Me
// @Produce     json
// @Security    InitData
//
// @Success     200  {object} handlers.MeResponse
// @Failure     401  {object} handlers.ErrorResponse "Invalid init data"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	u, err := h.userSvc.Get(c.Request.Context(), userID(c))
	if errors.Is(err, services.ErrUserNotFound) {
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MeResponse{OK: true, User: *u})
}

// UpdateLocale godoc
// @ID          updateLocale
// @Summary     Change report language
// @Description Sets the locale used for newly generated reports. Stored reports keep their language.
// @Tags        Me
// @Accept      json
// @Produce     json
// @Security    InitData
//
// @Param       body  body  handlers.UpdateLocaleRequest  true  "New locale"
//
// @Success     200  {object} handlers.MeResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid locale"
// @Failure     401  {object} handlers.ErrorResponse "Invalid init data"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /me/locale [put]
func (h *Handlers) UpdateLocale(c *gin.Context) {
	var req UpdateLocaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "locale required")
		return
	}
	u, err := h.userSvc.SetLocale(c.Request.Context(), userID(c), req.Locale)
	switch {
	case errors.Is(err, services.ErrInvalidLocale):
		fail(c, http.StatusBadRequest, ErrCodeInvalidLocale, err.Error())
		return
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, "user not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MeResponse{OK: true, User: *u})
}
