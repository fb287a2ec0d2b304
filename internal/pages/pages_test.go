package pages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/browser"
	"github.com/technica-vn/aiknow-probe/internal/config"
)

// fakeDriver scripts the page state instead of a live browser. texts maps a
// selector to the trimmed contents of its matches; responses feeds Text on
// the chat response selector one value per call.
type fakeDriver struct {
	texts     map[string][]string
	responses []string
	respCalls int

	typed   map[string]string
	clicks  []string
	entered []string

	failClick map[string]error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		texts:     make(map[string][]string),
		typed:     make(map[string]string),
		failClick: make(map[string]error),
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	if err := d.failClick[selector]; err != nil {
		return err
	}
	d.clicks = append(d.clicks, selector)
	return nil
}

func (d *fakeDriver) Type(ctx context.Context, selector, text string) error {
	d.typed[selector] = text
	return nil
}

func (d *fakeDriver) SendEnter(ctx context.Context, selector string) error {
	d.entered = append(d.entered, selector)
	return nil
}

func (d *fakeDriver) Text(ctx context.Context, selector string) (string, error) {
	if d.responses != nil && strings.Contains(selector, "assistant") {
		i := d.respCalls
		if i >= len(d.responses) {
			i = len(d.responses) - 1
		}
		d.respCalls++
		return d.responses[i], nil
	}
	if matches := d.texts[selector]; len(matches) > 0 {
		return matches[0], nil
	}
	return "", nil
}

func (d *fakeDriver) Texts(ctx context.Context, selector string) ([]string, error) {
	return d.texts[selector], nil
}

func (d *fakeDriver) ClickMatch(ctx context.Context, selector, text string) (bool, error) {
	for _, t := range d.texts[selector] {
		if t == text {
			d.clicks = append(d.clicks, selector+"="+text)
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if len(d.texts[selector]) == 0 {
		return browser.ErrElementNotFound
	}
	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

var _ browser.Driver = (*fakeDriver)(nil)

func fastLoginPage(d browser.Driver) *LoginPage {
	p := NewLoginPage(d, zap.NewNop())
	p.landingWait = 200 * time.Millisecond
	p.checkInterval = 10 * time.Millisecond
	return p
}

func TestLogin_Success(t *testing.T) {
	d := newFakeDriver()
	d.texts[loginForm] = []string{"form"}
	d.texts[postLoginLanding] = []string{"dashboard"}

	err := fastLoginPage(d).Login(context.Background(), "auto_user0001", "pw")
	require.NoError(t, err)

	assert.Equal(t, "auto_user0001", d.typed[loginUserInput])
	assert.Equal(t, "pw", d.typed[loginPassInput])
	assert.Contains(t, d.clicks, loginSubmit)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	d := newFakeDriver()
	d.texts[loginForm] = []string{"form"}
	d.texts[loginErrorToast] = []string{"Incorrect username or password"}

	err := fastLoginPage(d).Login(context.Background(), "auto_user0001", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "Incorrect username or password")
}

func TestLogin_LandingNeverAppears(t *testing.T) {
	d := newFakeDriver()
	d.texts[loginForm] = []string{"form"}

	err := fastLoginPage(d).Login(context.Background(), "auto_user0001", "pw")
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestOpenChat(t *testing.T) {
	d := newFakeDriver()
	d.texts[sideMenuLinks] = []string{"Dashboard", "Settings"}
	d.texts[subMenuLinks] = []string{"Users", "Chat"}
	d.texts[chatSurface] = []string{"chat"}

	err := NewHomePage(d, zap.NewNop()).OpenChat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{sideMenuLinks + "=Settings", subMenuLinks + "=Chat"}, d.clicks)
}

func TestOpenChat_MissingMenuEntry(t *testing.T) {
	d := newFakeDriver()
	d.texts[sideMenuLinks] = []string{"Dashboard"}

	err := NewHomePage(d, zap.NewNop()).OpenChat(context.Background())
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func chatConfig() config.ChatConfig {
	return config.ChatConfig{
		ResponseTimeout:  150 * time.Millisecond,
		StabilizePoll:    10 * time.Millisecond,
		InputSelector:    "#chat-input",
		ResponseSelector: "app-chat-chat-content .bubble-item-assistant:last-of-type",
		ModelButton:      "app-chat-main .dropdown > button",
		ModelList:        "app-chat-main .dropdown > ul a",
		NewChatButton:    "app-chat-sidebar button.new-chat",
	}
}

func TestSelectModel(t *testing.T) {
	cfg := chatConfig()
	d := newFakeDriver()
	d.texts[cfg.ModelList] = []string{"gpt-4o", "gemini-pro"}

	page := NewChatPage(d, cfg, zap.NewNop())
	require.NoError(t, page.SelectModel(context.Background(), "gemini-pro"))
	assert.Contains(t, d.clicks, cfg.ModelList+"=gemini-pro")
}

func TestSelectModel_NotFound(t *testing.T) {
	cfg := chatConfig()
	d := newFakeDriver()
	d.texts[cfg.ModelList] = []string{"gpt-4o"}

	page := NewChatPage(d, cfg, zap.NewNop())
	err := page.SelectModel(context.Background(), "claude")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)

	// The dropdown was toggled twice and no option click happened, so the
	// prior selection is untouched.
	var optionClicks int
	for _, c := range d.clicks {
		if strings.HasPrefix(c, cfg.ModelList+"=") {
			optionClicks++
		}
	}
	assert.Zero(t, optionClicks)
	assert.Equal(t, []string{cfg.ModelButton, cfg.ModelButton}, d.clicks)
}

func TestAsk_Stabilizes(t *testing.T) {
	cfg := chatConfig()
	d := newFakeDriver()
	d.responses = []string{"", "Hel", "Hello wor", "Hello world", "Hello world"}

	page := NewChatPage(d, cfg, zap.NewNop())
	answer, err := page.Ask(context.Background(), "say hello")
	require.NoError(t, err)

	assert.Equal(t, "Hello world", answer.Text)
	assert.Positive(t, answer.Elapsed)
	assert.Equal(t, "say hello", d.typed[cfg.InputSelector])
	assert.Equal(t, []string{cfg.InputSelector}, d.entered)
}

func TestAsk_NeverStabilizes(t *testing.T) {
	cfg := chatConfig()
	d := newFakeDriver()
	// A response that keeps changing forever.
	d.responses = make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		d.responses = append(d.responses, strings.Repeat("x", i+1))
	}

	page := NewChatPage(d, cfg, zap.NewNop())
	answer, err := page.Ask(context.Background(), "stream forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.NotEmpty(t, answer.Text, "the partial text travels with the error")
}

func TestAsk_CallerCancelled(t *testing.T) {
	cfg := chatConfig()
	cfg.ResponseTimeout = time.Minute
	d := newFakeDriver()
	d.responses = []string{"a", "ab", "abc"}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	page := NewChatPage(d, cfg, zap.NewNop())
	_, err := page.Ask(ctx, "prompt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrIncomplete)
}

func TestNewConversation(t *testing.T) {
	cfg := chatConfig()
	d := newFakeDriver()

	page := NewChatPage(d, cfg, zap.NewNop())
	require.NoError(t, page.NewConversation(context.Background()))
	assert.Equal(t, []string{cfg.NewChatButton}, d.clicks)
}
