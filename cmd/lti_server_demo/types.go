package main

import (
	"context"
	"fmt"

	lti1p3 "github.com/aspire-lms/lti1p3-golang"
)

// PlatformRegistration is one LMS tenant's row in the registration database.
type PlatformRegistration struct {
	ID                 uint
	ClientID           string `gorm:"uniqueIndex"`
	AuthRequestURI     string
	TargetLinkURI      string
	AccessTokenGetURI  string
	AccessTokenPostURI string
	JWKURI             string
	Issuer             string
	Domain             string
	DeploymentID       string
}

func (r *PlatformRegistration) platformConfig() *lti1p3.PlatformConfig {
	return &lti1p3.PlatformConfig{
		AuthRequestURI:     r.AuthRequestURI,
		TargetLinkURI:      r.TargetLinkURI,
		AccessTokenGetURI:  r.AccessTokenGetURI,
		AccessTokenPostURI: r.AccessTokenPostURI,
		JWKURI:             r.JWKURI,
		Issuer:             r.Issuer,
		Domain:             r.Domain,
		DeploymentID:       r.DeploymentID,
	}
}

func (s *Server) resolvePlatform(ctx context.Context, clientID string) (*lti1p3.PlatformConfig, error) {
	var reg PlatformRegistration
	if err := s.db.WithContext(ctx).Raw("SELECT * FROM platform_registrations WHERE client_id = ?", clientID).Scan(&reg).Error; err != nil {
		return nil, err
	}

	if reg.ClientID == "" {
		return nil, &lti1p3.ClientIdError{ClientID: clientID, Message: "unregistered platform"}
	}

	return reg.platformConfig(), nil
}

// devClientID names the registration seeded for the local simulated launch.
const devClientID = "dev-client"

func (s *Server) seedDevRegistration(addr string) error {
	var count int64
	if err := s.db.Model(&PlatformRegistration{}).Where("client_id = ?", devClientID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	base := fmt.Sprintf("http://localhost%s", addr)

	return s.db.Create(&PlatformRegistration{
		ClientID:       devClientID,
		AuthRequestURI: base + "/dev/auth",
		TargetLinkURI:  base + "/launch/info",
		JWKURI:         lti1p3.UseDevJWK,
		Issuer:         base,
		Domain:         base,
	}).Error
}
