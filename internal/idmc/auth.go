package idmc

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// IDMC auth endpoints.
const (
	loginPath     = "/saas/public/core/v3/login"
	jwtTokenPath  = "/identity-service/api/v1/jwt/Token"
	jwtClientID   = "cdlg_app"
	sessionHeader = "IDS-SESSION-ID"
	sessionCookie = "USER_SESSION"
)

// defaultJWTLifetime applies when the JWT carries no exp claim.
const defaultJWTLifetime = 30 * time.Minute

// nonceBytes is the number of random bytes in the JWT request nonce.
const nonceBytes = 8

// Session is an authenticated IDMC session plus the CDGC JWT derived from it.
type Session struct {
	SessionID string
	OrgID     string
	OrgName   string
	UserID    string
	UserName  string
	PodURL    string
	JWT       string
	Expiry    time.Time
}

// Authenticator performs the two-step IDMC login: a v3 username/password
// login that yields a session ID, followed by a JWT request against the pod.
type Authenticator struct {
	loginURL   string
	podURL     string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewAuthenticator creates an Authenticator. podURL may be empty, in which
// case the pod is taken from the login response.
func NewAuthenticator(
	loginURL, podURL, username, password string,
	httpClient *http.Client,
	logger *slog.Logger,
	userAgent string,
) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Authenticator{
		loginURL:   strings.TrimRight(loginURL, "/"),
		podURL:     strings.TrimRight(podURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse mirrors the v3 login JSON response.
type loginResponse struct {
	Products []struct {
		Name       string `json:"name"`
		BaseAPIURL string `json:"baseApiUrl"`
	} `json:"products"`
	UserInfo struct {
		SessionID string `json:"sessionId"`
		ID        string `json:"id"`
		Name      string `json:"name"`
		OrgID     string `json:"orgId"`
		OrgName   string `json:"orgName"`
	} `json:"userInfo"`
}

type jwtResponse struct {
	JWTToken string `json:"jwt_token"` //nolint:tagliatelle // IDMC wire format
}

// Login performs the username/password login and returns a session without a JWT.
func (a *Authenticator) Login(ctx context.Context) (*Session, error) {
	if a.username == "" || a.password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrAuthentication)
	}

	a.logger.Info("logging in", slog.String("user", a.username), slog.String("login_url", a.loginURL))

	body, err := json.Marshal(loginRequest{Username: a.username, Password: a.password})
	if err != nil {
		return nil, fmt.Errorf("idmc: encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.loginURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building login request: %v", ErrAuthentication, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	var lr loginResponse
	if err := a.send(req, &lr); err != nil {
		return nil, err
	}

	if lr.UserInfo.SessionID == "" {
		return nil, fmt.Errorf("%w: login response has no session ID", ErrAuthentication)
	}

	sess := &Session{
		SessionID: lr.UserInfo.SessionID,
		OrgID:     lr.UserInfo.OrgID,
		OrgName:   lr.UserInfo.OrgName,
		UserID:    lr.UserInfo.ID,
		UserName:  lr.UserInfo.Name,
		PodURL:    a.podURL,
	}

	if sess.PodURL == "" {
		sess.PodURL = podFromProducts(lr)
	}

	a.logger.Info("login successful",
		slog.String("org", sess.OrgName),
		slog.String("user_id", sess.UserID),
	)

	return sess, nil
}

// GenerateToken requests a CDGC JWT for the session and stores it on sess.
func (a *Authenticator) GenerateToken(ctx context.Context, sess *Session) error {
	if sess.PodURL == "" {
		return fmt.Errorf("%w: pod API URL unknown", ErrAuthentication)
	}

	nonce, err := newNonce()
	if err != nil {
		return fmt.Errorf("idmc: generating nonce: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", jwtClientID)
	params.Set("nonce", nonce)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.PodURL+jwtTokenPath+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: building token request: %v", ErrAuthentication, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set(sessionHeader, sess.SessionID)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess.SessionID})

	var jr jwtResponse
	if err := a.send(req, &jr); err != nil {
		return err
	}

	if jr.JWTToken == "" {
		return fmt.Errorf("%w: token response has no jwt_token", ErrAuthentication)
	}

	sess.JWT = jr.JWTToken
	sess.Expiry = jwtExpiry(jr.JWTToken, time.Now())

	a.logger.Debug("JWT generated", slog.Time("expiry", sess.Expiry))

	return nil
}

// Authenticate runs Login followed by GenerateToken.
func (a *Authenticator) Authenticate(ctx context.Context) (*Session, error) {
	sess, err := a.Login(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.GenerateToken(ctx, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// send executes an auth request and decodes the JSON response. Every
// failure is reported as ErrAuthentication; API errors stay reachable
// through errors.As for their status and message.
func (a *Authenticator) send(req *http.Request, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrAuthentication, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Join(ErrAuthentication, newAPIError(resp.StatusCode, resp.Header.Get(headerRequestID), data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrAuthentication, err)
	}

	return nil
}

// podFromProducts derives the pod base URL (scheme + host) from the first
// product entry in the login response.
func podFromProducts(lr loginResponse) string {
	for _, p := range lr.Products {
		u, err := url.Parse(p.BaseAPIURL)
		if err != nil || u.Host == "" {
			continue
		}

		return u.Scheme + "://" + u.Host
	}

	return ""
}

// jwtExpiry reads the exp claim without verifying the signature; the token
// is only ever presented back to the issuer.
func jwtExpiry(token string, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return now.Add(defaultJWTLifetime)
	}

	return claims.ExpiresAt.Time
}

func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Valid reports whether the session holds a JWT that has not expired.
func (s *Session) Valid() bool {
	return s != nil && s.oauthToken().Valid()
}

// oauthToken expresses the session JWT as an oauth2.Token so the standard
// reuse-until-expiry machinery can manage it.
func (s *Session) oauthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: s.JWT,
		TokenType:   "Bearer",
		Expiry:      s.Expiry,
	}
}
