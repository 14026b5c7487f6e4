package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortal is an httptest stand-in for the registrar dashboard: login
// form with a CSRF token, a cookie session, a domain table with renew
// forms and a confirmation step.
type fakePortal struct {
	mux          *http.ServeMux
	email        string
	password     string
	renewCalls   []string
	confirmCalls []string
	failRenew    bool
}

func newFakePortal() *fakePortal {
	p := &fakePortal{
		mux:      http.NewServeMux(),
		email:    "user@example.com",
		password: "secret",
	}

	p.mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/auth/login" method="post">
			<input type="hidden" name="_token" value="tok123">
			<input type="email" name="email">
			<input type="password" name="password">
			<button type="submit">Login</button>
		</form></body></html>`)
	})

	p.mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("_token") != "tok123" || r.FormValue("email") != p.email || r.FormValue("password") != p.password {
			fmt.Fprint(w, `<html><body><div class="error">Invalid credentials</div>
				<form action="/auth/login" method="post">
				<input type="hidden" name="_token" value="tok123">
				<input type="email" name="email">
				<input type="password" name="password">
				</form></body></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "sess-1", Path: "/"})
		http.Redirect(w, r, "/panel/main", http.StatusFound)
	})

	p.mux.HandleFunc("GET /panel/main", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "sess-1" {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		if r.URL.Query().Get("page") != "/panel/domains" {
			fmt.Fprint(w, `<html><body><h1>Panel</h1></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><table><tbody>
			<tr><td>1</td><td>a.example</td><td>2031-01-02</td>
				<td><form action="/panel/renew" method="post">
					<input type="hidden" name="domain" value="a.example">
					<button type="submit">Renew</button></form></td></tr>
			<tr><td>2</td><td>b.example</td><td>2031-06-15</td>
				<td><span>Not yet due</span></td></tr>
		</tbody></table></body></html>`)
	})

	p.mux.HandleFunc("POST /panel/renew", func(w http.ResponseWriter, r *http.Request) {
		if p.failRenew {
			http.Error(w, "renewal backend down", http.StatusServiceUnavailable)
			return
		}
		p.renewCalls = append(p.renewCalls, r.FormValue("domain"))
		fmt.Fprintf(w, `<html><body><form action="/panel/renew/confirm" method="post">
			<input type="hidden" name="domain" value="%s">
			<button type="submit">Confirm</button></form></body></html>`, r.FormValue("domain"))
	})

	p.mux.HandleFunc("POST /panel/renew/confirm", func(w http.ResponseWriter, r *http.Request) {
		p.confirmCalls = append(p.confirmCalls, r.FormValue("domain"))
		fmt.Fprint(w, `<html><body><p>Renewed</p></body></html>`)
	})

	return p
}

func newTestClient(t *testing.T, server *httptest.Server) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient(Options{
		BaseURL:     server.URL,
		LoginPath:   "/auth/login",
		DomainsPath: "/panel/main?page=%2Fpanel%2Fdomains",
		PanelPath:   "/panel/main",
		Email:       "user@example.com",
		Password:    "secret",
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHTTPClientLogin(t *testing.T) {
	fake := newFakePortal()
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	require.NoError(t, client.Login(context.Background()))
}

func TestHTTPClientLoginRejected(t *testing.T) {
	fake := newFakePortal()
	fake.password = "something-else"
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	err := client.Login(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "Invalid credentials")
}

func TestHTTPClientLoginPortalDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.Login(context.Background())
	require.Error(t, err)

	var navErr *NavigationError
	assert.ErrorAs(t, err, &navErr)
}

func TestHTTPClientListDomains(t *testing.T) {
	fake := newFakePortal()
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	require.NoError(t, client.Login(context.Background()))

	records, err := client.ListDomains(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "a.example", records[0].Name)
	assert.True(t, records[0].Eligible)
	assert.Equal(t, "b.example", records[1].Name)
	assert.False(t, records[1].Eligible)
}

func TestHTTPClientListDomainsRequiresLogin(t *testing.T) {
	fake := newFakePortal()
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.ListDomains(context.Background())

	var navErr *NavigationError
	assert.ErrorAs(t, err, &navErr)
}

func TestHTTPClientRenewWithConfirmation(t *testing.T) {
	fake := newFakePortal()
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	require.NoError(t, client.Login(context.Background()))

	records, err := client.ListDomains(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Renew(context.Background(), records[0]))
	assert.Equal(t, []string{"a.example"}, fake.renewCalls)
	assert.Equal(t, []string{"a.example"}, fake.confirmCalls)
}

func TestHTTPClientRenewWithoutForm(t *testing.T) {
	fake := newFakePortal()
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	require.NoError(t, client.Login(context.Background()))

	records, err := client.ListDomains(context.Background())
	require.NoError(t, err)

	// b.example has no renew form; attempting it is a per-domain error.
	err = client.Renew(context.Background(), records[1])
	var renewErr *RenewalError
	require.ErrorAs(t, err, &renewErr)
	assert.Equal(t, "b.example", renewErr.Domain)
}

func TestHTTPClientRenewBackendFailure(t *testing.T) {
	fake := newFakePortal()
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newTestClient(t, server)
	require.NoError(t, client.Login(context.Background()))

	records, err := client.ListDomains(context.Background())
	require.NoError(t, err)

	fake.failRenew = true
	err = client.Renew(context.Background(), records[0])

	var renewErr *RenewalError
	require.ErrorAs(t, err, &renewErr)
	assert.Equal(t, "a.example", renewErr.Domain)
}

func TestBuildTransportProxySchemes(t *testing.T) {
	cases := []struct {
		proxyURL string
		wantErr  bool
	}{
		{"", false},
		{"http://127.0.0.1:7890", false},
		{"socks5://127.0.0.1:1080", false},
		{"ftp://127.0.0.1:21", true},
	}

	for _, tc := range cases {
		_, err := buildTransport(tc.proxyURL)
		if tc.wantErr {
			assert.Error(t, err, tc.proxyURL)
		} else {
			assert.NoError(t, err, tc.proxyURL)
		}
	}
}
