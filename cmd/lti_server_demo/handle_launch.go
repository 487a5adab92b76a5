package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	lti1p3 "github.com/aspire-lms/lti1p3-golang"
)

// errorResponse is the stable error shape returned at the route boundary.
// Internal details never leak past it.
type errorResponse struct {
	StatusCode int    `json:"status_code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func writeError(e echo.Context, err error) error {
	var se lti1p3.StatusError
	if errors.As(err, &se) {
		return e.JSON(se.Status(), errorResponse{
			StatusCode: se.Status(),
			Type:       se.Type(),
			Message:    se.Error(),
		})
	}

	return e.JSON(http.StatusInternalServerError, errorResponse{
		StatusCode: http.StatusInternalServerError,
		Type:       "InternalError",
		Message:    "internal server error",
	})
}

func (s *Server) handlePublicJWK(e echo.Context) error {
	jwks, err := s.keys.ToolJWKS()
	if err != nil {
		return writeError(e, err)
	}

	return e.JSON(http.StatusOK, jwks)
}

func (s *Server) handleSessionRefresh(e echo.Context) error {
	result, err := s.lti.RefreshSession(e.Request())
	if err != nil {
		return e.JSON(http.StatusUnauthorized, map[string]string{
			"msg":   "failed to refresh token",
			"cause": err.Error(),
		})
	}

	if result.StorageTarget == lti1p3.StorageTargetCookie {
		for _, cookie := range result.Cookies() {
			e.SetCookie(cookie)
		}

		return e.JSON(http.StatusOK, map[string]any{
			"msg":            "session successfully refreshed",
			"storage_target": result.StorageTarget,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"msg":                "session successfully refreshed",
		"storage_target":     result.StorageTarget,
		"new_session_id":     result.Session.SessionID,
		"refresh_token":      result.Session.RefreshToken,
		"session_expiration": result.ExpiresAtMillis(),
	})
}

func (s *Server) handleOidcInitPost(e echo.Context) error {
	form, err := e.FormParams()
	if err != nil {
		return writeError(e, err)
	}

	authReqURL, err := s.lti.CreateAuthResponse(e.Request().Context(), form)
	if err != nil {
		var cerr *lti1p3.ClientIdError
		if errors.As(err, &cerr) {
			return e.JSON(cerr.Status(), map[string]string{"type": cerr.Type(), "details": cerr.Error()})
		}
		return writeError(e, err)
	}

	// 307 keeps the form POST intact across the redirect.
	return e.Redirect(http.StatusTemporaryRedirect, authReqURL)
}

func (s *Server) handleOidcInitGet(e echo.Context) error {
	authReqURL, err := s.lti.CreateAuthResponse(e.Request().Context(), e.QueryParams())
	if err != nil {
		return writeError(e, err)
	}

	return e.Redirect(http.StatusFound, authReqURL)
}

func (s *Server) handleOidcResponse(e echo.Context) error {
	form, err := e.FormParams()
	if err != nil {
		return writeError(e, err)
	}

	result, err := s.lti.ValidateResponse(e.Request().Context(), form)
	if err != nil {
		var se lti1p3.StatusError
		if errors.As(err, &se) {
			return e.JSON(se.Status(), map[string]string{"Error": se.Error()})
		}
		return writeError(e, err)
	}

	// Consumed by a thin client-side redirect step that forwards the session
	// id to the target link.
	return e.JSON(http.StatusOK, map[string]any{
		"session_id":       result.SessionID,
		"storage_target":   result.StorageTarget,
		"target_link_uri":  result.TargetLinkURI,
		"oidc_auth_domain": result.AuthDomain,
	})
}

// handleDevKey serves the developer key JSON a platform admin pastes in when
// registering the tool manually.
func (s *Server) handleDevKey(e echo.Context) error {
	tool := s.cfg.Tool()

	return e.JSON(http.StatusOK, map[string]any{
		"title":               tool.ClientName,
		"oidc_initiation_url": tool.DefaultDomain + tool.InitiateLoginPath,
		"target_link_uri":     tool.DefaultDomain + "/launch/info",
		"public_jwk_url":      tool.DefaultDomain + tool.JWKPath,
		"redirect_uris":       []string{tool.AuthRedirectPath, "/launch"},
		"grant_types":         []string{"client_credentials", "implicit"},
		"application_type":    "web",
	})
}

// handleLaunchInfo is a protected example endpoint: the guard must find a
// live session before the custom claim data is returned.
func (s *Server) handleLaunchInfo(e echo.Context) error {
	sess, err := s.guard.EnforceAuth(e.Request(), lti1p3.AuthArgs{})
	if err != nil {
		return writeError(e, err)
	}

	info, err := s.lti.GetSessionInfo(sess.SessionID)
	if err != nil {
		return writeError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"session_info": info,
		"client_id":    sess.ClientID,
		"expires_at":   fmt.Sprint(sess.ExpiresAt().Unix()),
	})
}
