package portal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	xproxy "golang.org/x/net/proxy"

	"domain-renewer/internal/models"
)

// Options configures a portal session. Both drivers take the same set.
type Options struct {
	BaseURL     string
	LoginPath   string
	DomainsPath string
	PanelPath   string // path prefix that confirms a successful login
	Email       string
	Password    string
	ProxyURL    string // http://, https:// or socks5://; empty for direct
	Timeout     time.Duration
}

var confirmLabel = regexp.MustCompile(`(?i)\bconfirm\b|确认`)

// renewForm is the form a domain row submits to trigger renewal.
type renewForm struct {
	action string
	values url.Values
}

// HTTPClient drives the portal over plain HTTP with a cookie session.
// It is the default driver; the browser driver exists for deployments
// where the portal sits behind an interactive challenge.
type HTTPClient struct {
	opts     Options
	http     *http.Client
	base     *url.URL
	loggedIn bool
	renewals map[string]renewForm // keyed by domain name, filled by ListDomains
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an unauthenticated portal session.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	transport, err := buildTransport(opts.ProxyURL)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &HTTPClient{
		opts: opts,
		base: base,
		http: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: transport,
		},
		renewals: make(map[string]renewForm),
	}, nil
}

// buildTransport wires the outbound proxy. SOCKS5 proxies need a custom
// dialer; http/https proxies go through the standard transport hook.
func buildTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{}
	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := xproxy.FromURL(u, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}

	return transport, nil
}

// Login fetches the login form, replays its hidden fields (CSRF tokens and
// the like) with the credentials filled in, and verifies the session landed
// on the panel.
func (c *HTTPClient) Login(ctx context.Context) error {
	doc, _, err := c.get(ctx, c.resolve(c.opts.LoginPath))
	if err != nil {
		return &NavigationError{Page: "login", Err: err}
	}

	form := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(`input[name="email"], input[type="email"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		form = doc.Find("form").First()
	}
	if form.Length() == 0 {
		return &AuthError{Reason: "login form not found"}
	}

	values := hiddenInputs(form)
	values.Set("email", c.opts.Email)
	values.Set("password", c.opts.Password)

	action := c.opts.LoginPath
	if a, ok := form.Attr("action"); ok && a != "" {
		action = a
	}

	doc, resp, err := c.postForm(ctx, c.resolve(action), values)
	if err != nil {
		return &NavigationError{Page: "login", Err: err}
	}

	if strings.HasPrefix(resp.Request.URL.Path, c.panelPath()) {
		c.loggedIn = true
		return nil
	}

	// Still on a page with a login form: the portal rejected us.
	if doc.Find(`input[name="password"], input[type="password"]`).Length() > 0 {
		reason := "credentials rejected"
		if msg := strings.TrimSpace(doc.Find(".error, .alert-danger").First().Text()); msg != "" {
			reason = msg
		}
		return &AuthError{Reason: reason}
	}

	return &AuthError{Reason: fmt.Sprintf("unexpected page after login: %s", resp.Request.URL.Path)}
}

// ListDomains scrapes the domain table and remembers each row's renewal
// form so Renew can submit it later in the same session.
func (c *HTTPClient) ListDomains(ctx context.Context) ([]models.DomainRecord, error) {
	if !c.loggedIn {
		return nil, &NavigationError{Page: "domains", Err: fmt.Errorf("not logged in")}
	}

	doc, _, err := c.get(ctx, c.resolve(c.opts.DomainsPath))
	if err != nil {
		return nil, &NavigationError{Page: "domains", Err: err}
	}

	records := parseDomainRows(doc)

	rows := doc.Find("table tbody tr")
	for _, record := range records {
		form := rows.Eq(record.Row).Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return renewLabel.MatchString(s.Text())
		}).First()
		if form.Length() == 0 {
			continue
		}
		action, _ := form.Attr("action")
		if action == "" {
			continue
		}
		c.renewals[record.Name] = renewForm{action: action, values: hiddenInputs(form)}
	}

	return records, nil
}

// Renew submits the row's renewal form and, when the portal answers with a
// confirmation step, submits that too.
func (c *HTTPClient) Renew(ctx context.Context, record models.DomainRecord) error {
	form, ok := c.renewals[record.Name]
	if !ok {
		return &RenewalError{Domain: record.Name, Reason: "no renewal form in listing row"}
	}

	doc, resp, err := c.postForm(ctx, c.resolve(form.action), form.values)
	if err != nil {
		return &RenewalError{Domain: record.Name, Reason: "renewal request failed", Err: err}
	}
	if resp.StatusCode >= 400 {
		return &RenewalError{Domain: record.Name, Reason: fmt.Sprintf("portal returned status %d", resp.StatusCode)}
	}

	confirm := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return confirmLabel.MatchString(s.Text())
	}).First()
	if confirm.Length() == 0 {
		return nil
	}

	action, _ := confirm.Attr("action")
	if action == "" {
		action = resp.Request.URL.String()
	}
	_, resp, err = c.postForm(ctx, c.resolve(action), hiddenInputs(confirm))
	if err != nil {
		return &RenewalError{Domain: record.Name, Reason: "confirmation failed", Err: err}
	}
	if resp.StatusCode >= 400 {
		return &RenewalError{Domain: record.Name, Reason: fmt.Sprintf("confirmation returned status %d", resp.StatusCode)}
	}

	return nil
}

// Close drops idle connections. The cookie session simply expires.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) panelPath() string {
	if i := strings.IndexByte(c.opts.PanelPath, '?'); i >= 0 {
		return c.opts.PanelPath[:i]
	}
	return c.opts.PanelPath
}

// resolve turns a possibly relative portal path into an absolute URL.
func (c *HTTPClient) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.opts.BaseURL + path
	}
	return c.base.ResolveReference(ref).String()
}

func (c *HTTPClient) get(ctx context.Context, rawURL string) (*goquery.Document, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	return c.do(req)
}

func (c *HTTPClient) postForm(ctx context.Context, rawURL string, values url.Values) (*goquery.Document, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*goquery.Document, *http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, resp, fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, resp, nil
}

// hiddenInputs collects a form's hidden fields, which carry the CSRF token
// and row identifiers the portal expects back.
func hiddenInputs(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		if name == "" {
			return
		}
		value, _ := input.Attr("value")
		values.Set(name, value)
	})
	return values
}
