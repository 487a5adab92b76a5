package main

import (
	"net/http"
	"net/url"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	lti1p3 "github.com/aspire-lms/lti1p3-golang"
)

// The dev routes simulate the platform side of the handshake using the tool's
// own keypair. Hard-disabled outside a LOCAL environment.

func (s *Server) handleDevInit(e echo.Context) error {
	if s.cfg.Tool().Env != lti1p3.EnvLocal {
		return e.JSON(http.StatusNotImplemented, "NotImplementedError")
	}

	clientID := e.QueryParam("client_id")
	if clientID == "" {
		clientID = devClientID
	}

	platform, err := s.cfg.PlatformSettings(e.Request().Context(), clientID)
	if err != nil {
		return writeError(e, err)
	}

	sess, err := session.Get("dev_launch", e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
	}

	sess.Values = map[interface{}]interface{}{}
	sess.Values["dev_client_id"] = clientID

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	form := url.Values{
		"client_id":       {clientID},
		"login_hint":      {"dev-user"},
		"target_link_uri": {platform.TargetLinkURI},
	}
	if v := e.QueryParam("lti_storage_target"); v != "" {
		form.Set("lti_storage_target", v)
	}

	authReqURL, err := s.lti.CreateAuthResponse(e.Request().Context(), form)
	if err != nil {
		return writeError(e, err)
	}

	// The dev registration's auth endpoint points back at /dev/auth; 307
	// keeps the method so the auth handler sees the same request shape a
	// platform form_post would produce.
	return e.Redirect(http.StatusTemporaryRedirect, authReqURL)
}

func (s *Server) handleDevAuth(e echo.Context) error {
	if s.cfg.Tool().Env != lti1p3.EnvLocal {
		return e.JSON(http.StatusNotImplemented, "NotImplementedError")
	}

	clientID := e.QueryParam("client_id")
	nonce := e.QueryParam("nonce")
	state := e.QueryParam("state")

	sess, err := session.Get("dev_launch", e)
	if err != nil {
		return err
	}

	if sess.Values["dev_client_id"] != clientID {
		return e.JSON(http.StatusUnauthorized, map[string]string{"Error": "dev launch was not initiated for this client_id"})
	}

	params := map[string]any{
		lti1p3.CustomClaim: map[string]any{
			"roles":   "TeacherEnrollment",
			"user_id": "dev-platform-user",
		},
	}

	idToken, err := s.lti.CreateDevToken(clientID, nonce, params)
	if err != nil {
		return writeError(e, err)
	}

	// The caller finishes the simulated launch by form-posting these values
	// to the auth redirect path.
	return e.JSON(http.StatusOK, map[string]string{
		"id_token":     idToken,
		"state":        state,
		"redirect_uri": s.cfg.Tool().AuthRedirectPath,
	})
}
