package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"domain-renewer/internal/models"
)

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// stealthJS hides the usual headless fingerprints before any portal script
// runs. The dashboard sits behind an anti-bot challenge that inspects these.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'hardwareConcurrency', {get: () => 4});
window.chrome = {runtime: {}};
`

// BrowserClient drives the portal through headless Chrome. Used when the
// portal is fronted by an interactive challenge the HTTP driver cannot pass.
type BrowserClient struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	loggedIn    bool
}

var _ Client = (*BrowserClient)(nil)

// NewBrowserClient launches a headless Chrome session.
func NewBrowserClient(opts Options) (*BrowserClient, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(browserUserAgent),
		chromedp.WindowSize(1280, 720),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	c := &BrowserClient{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}

	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
		return err
	})); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return c, nil
}

// Login fills the login form once both inputs are actually visible (the
// anti-bot challenge keeps them hidden until it settles) and waits for the
// panel URL.
func (c *BrowserClient) Login(ctx context.Context) error {
	tctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.Navigate(c.resolve(c.opts.LoginPath)),
		chromedp.WaitVisible(`input[name="email"]`, chromedp.ByQuery),
		chromedp.WaitVisible(`input[name="password"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="email"]`, c.opts.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, c.opts.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
	)
	if err != nil {
		return &AuthError{Reason: "login flow did not complete", Err: err}
	}

	landed := fmt.Sprintf(`window.location.pathname.indexOf(%q) === 0`, c.panelPathPrefix())
	if err := chromedp.Run(tctx, chromedp.Poll(landed, nil, chromedp.WithPollingInterval(time.Second))); err != nil {
		return &AuthError{Reason: "panel never loaded after login", Err: err}
	}

	c.loggedIn = true
	return nil
}

// ListDomains renders the domain table and hands the HTML to the same
// parser the HTTP driver uses.
func (c *BrowserClient) ListDomains(ctx context.Context) ([]models.DomainRecord, error) {
	if !c.loggedIn {
		return nil, &NavigationError{Page: "domains", Err: fmt.Errorf("not logged in")}
	}

	tctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(tctx,
		chromedp.Navigate(c.resolve(c.opts.DomainsPath)),
		chromedp.WaitVisible("table tbody tr", chromedp.ByQuery),
		chromedp.OuterHTML("table", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &NavigationError{Page: "domains", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &NavigationError{Page: "domains", Err: err}
	}

	return parseDomainRows(doc), nil
}

// Renew clicks the row's renew control and then the confirmation the portal
// pops up.
func (c *BrowserClient) Renew(ctx context.Context, record models.DomainRecord) error {
	tctx, cancel := c.withTimeout(ctx)
	defer cancel()

	clickRenew := fmt.Sprintf(`(() => {
		const row = document.querySelectorAll('table tbody tr')[%d];
		if (!row) return false;
		const ctl = Array.from(row.querySelectorAll('button, a.btn, input[type=submit]'))
			.find(el => /renew|prolong|续期/i.test(el.textContent || el.value || ''));
		if (!ctl) return false;
		ctl.click();
		return true;
	})()`, record.Row)

	var clicked bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(clickRenew, &clicked)); err != nil {
		return &RenewalError{Domain: record.Name, Reason: "renew click failed", Err: err}
	}
	if !clicked {
		return &RenewalError{Domain: record.Name, Reason: "no renewal control in listing row"}
	}

	clickConfirm := `(() => {
		const ctl = Array.from(document.querySelectorAll('button, a.btn'))
			.find(el => /confirm|确认/i.test(el.textContent || ''));
		if (!ctl) return false;
		ctl.click();
		return true;
	})()`

	confirmCtx, confirmCancel := context.WithTimeout(tctx, 15*time.Second)
	defer confirmCancel()
	if err := chromedp.Run(confirmCtx, chromedp.Poll(clickConfirm, nil, chromedp.WithPollingInterval(500*time.Millisecond))); err != nil {
		return &RenewalError{Domain: record.Name, Reason: "confirmation control never appeared", Err: err}
	}

	return nil
}

// Close tears down the Chrome process. Safe to call more than once.
func (c *BrowserClient) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}

func (c *BrowserClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	// The chromedp context carries the browser; the caller context only
	// bounds this one operation.
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() { stop(); cancel() }
}

func (c *BrowserClient) panelPathPrefix() string {
	if i := strings.IndexByte(c.opts.PanelPath, '?'); i >= 0 {
		return c.opts.PanelPath[:i]
	}
	return c.opts.PanelPath
}

func (c *BrowserClient) resolve(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimRight(c.opts.BaseURL, "/") + path
}
