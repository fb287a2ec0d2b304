package pages

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/browser"
)

const (
	sideMenuLinks = "app-sidebar-menu-layout a"
	subMenuLinks  = "app-sub-menu-layout a"
	chatSurface   = "app-chat-main"
)

// HomePage traverses the post-login side menu.
type HomePage struct {
	driver browser.Driver
	logger *zap.Logger
}

// NewHomePage creates a HomePage over the driver.
func NewHomePage(driver browser.Driver, logger *zap.Logger) *HomePage {
	return &HomePage{driver: driver, logger: logger.Named("home_page")}
}

// OpenMenu clicks the side-menu entry with the given label.
func (p *HomePage) OpenMenu(ctx context.Context, name string) error {
	clicked, err := p.driver.ClickMatch(ctx, sideMenuLinks, name)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: menu entry %q", browser.ErrElementNotFound, name)
	}
	return nil
}

// OpenChat navigates Settings -> Chat and waits for the chat surface.
func (p *HomePage) OpenChat(ctx context.Context) error {
	p.logger.Info("Navigating to the chat feature.")

	if err := p.OpenMenu(ctx, "Settings"); err != nil {
		return err
	}
	clicked, err := p.driver.ClickMatch(ctx, subMenuLinks, "Chat")
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: sub-menu entry %q", browser.ErrElementNotFound, "Chat")
	}
	return p.driver.WaitVisible(ctx, chatSurface, 30*time.Second)
}
