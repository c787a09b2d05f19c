package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	autherrors "github.com/omnibrand/go-session-kit/internal/errors"
	"github.com/omnibrand/go-session-kit/tenant"
)

const (
	loginPath   = "/auth/login"
	signupPath  = "/auth/signup"
	profilePath = "/auth/me"

	defaultHTTPTimeout = 15 * time.Second
)

// Client is the HTTP implementation of Backend. The wire contract is uniform
// across tenants (only the base URL differs): POST /auth/login and
// /auth/signup with JSON bodies, GET /auth/me with a bearer token.
type Client struct {
	tenant  tenant.Tenant
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

var _ Backend = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for testing
// and for hosts that need custom transport settings).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates the identity adapter for one tenant.
func NewClient(t tenant.Tenant, baseURL string, options ...ClientOption) (*Client, error) {
	if !tenant.Known(t) {
		return nil, errors.Errorf("[identity.NewClient] unknown tenant %q", t)
	}
	if baseURL == "" {
		return nil, errors.New("[identity.NewClient] baseURL is required")
	}

	client := &Client{
		tenant:  t,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Tenant implements Backend.
func (c *Client) Tenant() tenant.Tenant {
	return c.tenant
}

// Login implements Backend. Insufficient credentials fail locally with
// InvalidArgument and no network call is made.
func (c *Client) Login(ctx context.Context, creds Credentials) LoginResult {
	if err := creds.Validate(); err != nil {
		return LoginResult{Err: err}
	}

	body := map[string]string{}
	if creds.Email != "" {
		body["email"] = creds.Email
	}
	if creds.Phone != "" {
		body["phone"] = creds.Phone
	}
	if creds.Password != "" {
		body["password"] = creds.Password
	}
	if creds.OTP != "" {
		body["otp"] = creds.OTP
	}

	status, respBody, err := c.post(ctx, loginPath, body)
	if err != nil {
		return LoginResult{Err: err}
	}
	if status < 200 || status > 299 {
		return LoginResult{Err: remoteError(status, respBody)}
	}

	token := gjson.GetBytes(respBody, "token").String()
	if token == "" {
		return LoginResult{Err: errors.Wrap(autherrors.ErrTransient, "login response missing token")}
	}
	return LoginResult{
		Success: true,
		Token:   token,
		User:    userFromBody(respBody),
	}
}

// Signup implements Backend. A 2xx response without a token is not a failure:
// the backend accepted the account but requires an explicit login.
func (c *Client) Signup(ctx context.Context, profile map[string]any) SignupResult {
	if len(profile) == 0 {
		return SignupResult{Err: errors.Wrap(autherrors.ErrInvalidArgument, "signup profile is empty")}
	}

	status, respBody, err := c.post(ctx, signupPath, profile)
	if err != nil {
		return SignupResult{Err: err}
	}
	if status < 200 || status > 299 {
		return SignupResult{Err: remoteError(status, respBody)}
	}

	token := gjson.GetBytes(respBody, "token").String()
	if token == "" {
		return SignupResult{
			Success:       true,
			RequiresLogin: true,
			User:          userFromBody(respBody),
		}
	}
	return SignupResult{
		Success: true,
		Token:   token,
		User:    userFromBody(respBody),
	}
}

// FetchProfile implements Backend. The profile object is the response body
// itself. A 401 sets Unauthorized; every other failure is transient.
func (c *Client) FetchProfile(ctx context.Context, token string) ProfileResult {
	if token == "" {
		return ProfileResult{Err: errors.Wrap(autherrors.ErrInvalidArgument, "token is required")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+profilePath, nil)
	if err != nil {
		return ProfileResult{Err: errors.Wrap(autherrors.ErrTransient, err.Error())}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return ProfileResult{Err: errors.Wrap(autherrors.ErrTransient, err.Error())}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ProfileResult{Err: errors.Wrap(autherrors.ErrTransient, err.Error())}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ProfileResult{
			Unauthorized: true,
			Err:          errors.Wrap(autherrors.ErrUnauthorized, "token rejected"),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProfileResult{Err: remoteError(resp.StatusCode, respBody)}
	}

	var user map[string]any
	if err := json.Unmarshal(respBody, &user); err != nil {
		return ProfileResult{Err: errors.Wrap(autherrors.ErrTransient, "profile response is not an object")}
	}
	return ProfileResult{Success: true, User: user}
}

// Verify implements Backend as a thin wrapper over FetchProfile.
func (c *Client) Verify(ctx context.Context, token string) VerifyResult {
	profile := c.FetchProfile(ctx, token)
	return VerifyResult{
		Valid:        profile.Success,
		Unauthorized: profile.Unauthorized,
		Err:          profile.Err,
	}
}

// post issues a JSON POST and returns status plus raw body. Transport
// failures come back wrapped as transient.
func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, errors.Wrap(autherrors.ErrInvalidArgument, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.Wrap(autherrors.ErrTransient, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("tenant", string(c.tenant)).Str("path", path).Msg("identity request failed")
		return 0, nil, errors.Wrap(autherrors.ErrTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(autherrors.ErrTransient, err.Error())
	}
	return resp.StatusCode, respBody, nil
}

// userFromBody extracts the profile from a login/signup response. Backends
// either nest it under "user" or merge flat profile fields into the top-level
// object alongside the token.
func userFromBody(body []byte) map[string]any {
	if user := gjson.GetBytes(body, "user"); user.IsObject() {
		if m, ok := user.Value().(map[string]any); ok {
			return m
		}
	}

	user := map[string]any{}
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "token", "error", "message":
		default:
			user[key.String()] = value.Value()
		}
		return true
	})
	if len(user) == 0 {
		return nil
	}
	return user
}

// remoteError classifies a non-2xx response: 401 is Unauthorized, everything
// else is transient. The backend's own error text is preserved when present.
func remoteError(status int, body []byte) error {
	message := gjson.GetBytes(body, "error").String()
	if message == "" {
		message = gjson.GetBytes(body, "message").String()
	}
	if message == "" {
		message = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		return errors.Wrapf(autherrors.ErrUnauthorized, "%d %s", status, message)
	}
	return errors.Wrapf(autherrors.ErrTransient, "%d %s", status, message)
}
