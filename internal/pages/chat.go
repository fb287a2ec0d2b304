package pages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/browser"
	"github.com/technica-vn/aiknow-probe/internal/config"
)

var (
	// ErrModelNotFound is returned when the requested model is absent from
	// the selector dropdown. The prior selection is left unchanged.
	ErrModelNotFound = errors.New("model not found")

	// ErrIncomplete is returned when a response never stabilized within the
	// maximum wait. The partial text read so far accompanies it.
	ErrIncomplete = errors.New("response incomplete")
)

// Answer is one chat exchange's outcome.
type Answer struct {
	Text    string
	Elapsed time.Duration
}

// ChatPage submits prompts and reads responses back. Selectors and timing
// come from configuration since they vary per deployment.
type ChatPage struct {
	driver browser.Driver
	logger *zap.Logger
	cfg    config.ChatConfig
}

// NewChatPage creates a ChatPage over the driver.
func NewChatPage(driver browser.Driver, cfg config.ChatConfig, logger *zap.Logger) *ChatPage {
	return &ChatPage{driver: driver, logger: logger.Named("chat_page"), cfg: cfg}
}

// SelectModel opens the model dropdown and chooses the named option. When the
// name is not in the list the dropdown is closed again so the prior selection
// stays active, and ErrModelNotFound is returned.
func (p *ChatPage) SelectModel(ctx context.Context, name string) error {
	if err := p.driver.Click(ctx, p.cfg.ModelButton); err != nil {
		return err
	}

	options, err := p.driver.Texts(ctx, p.cfg.ModelList)
	if err != nil {
		return err
	}

	clicked, err := p.driver.ClickMatch(ctx, p.cfg.ModelList, name)
	if err != nil {
		return err
	}
	if !clicked {
		// Close the dropdown; selecting nothing keeps the current model.
		if err := p.driver.Click(ctx, p.cfg.ModelButton); err != nil {
			p.logger.Debug("Could not close model dropdown.", zap.Error(err))
		}
		p.logger.Warn("Requested model not present.",
			zap.String("model", name), zap.Strings("available", options))
		return fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}

	p.logger.Info("Model selected.", zap.String("model", name))
	return nil
}

// NewConversation starts a fresh chat so prior exchanges cannot bleed into
// the next scenario's context window.
func (p *ChatPage) NewConversation(ctx context.Context) error {
	return p.driver.Click(ctx, p.cfg.NewChatButton)
}

// Ask types the prompt, submits it, and polls the response region until its
// content is identical across two consecutive polls, or the maximum wait
// elapses. On timeout the partial text is returned together with
// ErrIncomplete. The two-identical-polls rule is a timing heuristic, kept
// as-is until the UI exposes an explicit completion signal.
func (p *ChatPage) Ask(ctx context.Context, prompt string) (Answer, error) {
	if err := p.driver.Type(ctx, p.cfg.InputSelector, prompt); err != nil {
		return Answer{}, err
	}
	start := time.Now()
	if err := p.driver.SendEnter(ctx, p.cfg.InputSelector); err != nil {
		return Answer{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ResponseTimeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.StabilizePoll)
	defer ticker.Stop()

	var prev string
	for {
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return Answer{Text: prev, Elapsed: time.Since(start)}, ctx.Err()
			}
			p.logger.Warn("Response did not stabilize in time.",
				zap.Duration("max_wait", p.cfg.ResponseTimeout),
				zap.Int("partial_len", len(prev)))
			return Answer{Text: prev, Elapsed: time.Since(start)},
				fmt.Errorf("%w after %s", ErrIncomplete, p.cfg.ResponseTimeout)
		}

		cur, err := p.driver.Text(waitCtx, p.cfg.ResponseSelector)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return Answer{Text: prev, Elapsed: time.Since(start)},
					fmt.Errorf("%w after %s", ErrIncomplete, p.cfg.ResponseTimeout)
			}
			return Answer{Text: prev, Elapsed: time.Since(start)}, err
		}

		if cur != "" && cur == prev {
			elapsed := time.Since(start)
			p.logger.Debug("Response stabilized.",
				zap.Duration("elapsed", elapsed), zap.Int("len", len(cur)))
			return Answer{Text: cur, Elapsed: elapsed}, nil
		}
		prev = cur
	}
}
