// Package pages holds thin page objects over the browser driver. Each page
// exposes only the operations the harness needs and owns the selectors for
// its part of the UI.
package pages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/browser"
)

// ErrAuthenticationFailed is returned when the login form rejects the
// credentials (an error toast appeared instead of the landing page).
var ErrAuthenticationFailed = errors.New("authentication failed")

const (
	loginForm        = "app-login"
	loginUserInput   = "app-login .form-group:nth-of-type(1) input"
	loginPassInput   = "app-login .form-group:nth-of-type(2) input"
	loginSubmit      = "app-login button[type='submit']"
	loginErrorToast  = "#toast-container > :first-child"
	postLoginLanding = "app-admin-layout"
)

// LoginPage drives the authentication form.
type LoginPage struct {
	driver browser.Driver
	logger *zap.Logger

	// landingWait bounds the whole submit-and-settle phase; checkInterval is
	// the cadence for checking the error toast and the landing element.
	landingWait   time.Duration
	checkInterval time.Duration
}

// NewLoginPage creates a LoginPage with default wait bounds.
func NewLoginPage(driver browser.Driver, logger *zap.Logger) *LoginPage {
	return &LoginPage{
		driver:        driver,
		logger:        logger.Named("login_page"),
		landingWait:   30 * time.Second,
		checkInterval: 500 * time.Millisecond,
	}
}

// Login types the credentials, submits, and then watches for either the error
// toast (ErrAuthenticationFailed) or the post-login landmark (success).
func (p *LoginPage) Login(ctx context.Context, username, password string) error {
	p.logger.Info("Logging in.", zap.String("username", username))

	if err := p.driver.WaitVisible(ctx, loginForm, p.landingWait); err != nil {
		return err
	}
	if err := p.driver.Type(ctx, loginUserInput, username); err != nil {
		return err
	}
	if err := p.driver.Type(ctx, loginPassInput, password); err != nil {
		return err
	}
	if err := p.driver.Click(ctx, loginSubmit); err != nil {
		return err
	}

	err := browser.Poll(ctx, p.checkInterval, p.landingWait, func(pollCtx context.Context) (bool, error) {
		if banner, err := p.driver.Text(pollCtx, loginErrorToast); err == nil && banner != "" {
			return false, fmt.Errorf("%w: %s", ErrAuthenticationFailed, banner)
		}
		landed, err := p.driver.Texts(pollCtx, postLoginLanding)
		if err != nil {
			return false, nil
		}
		return len(landed) > 0, nil
	})
	if errors.Is(err, browser.ErrPollTimeout) {
		return fmt.Errorf("%w: %s never appeared", browser.ErrElementNotFound, postLoginLanding)
	}
	if err != nil {
		return err
	}

	p.logger.Info("Login succeeded.", zap.String("username", username))
	return nil
}
