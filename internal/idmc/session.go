package idmc

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/cdgc-go/internal/tokenfile"
)

// OpenSession returns an authenticated session and a TokenSource for the
// CDGC client. A cached session at cachePath is reused while its JWT is
// valid and it was issued by the same login URL; otherwise a fresh login is
// performed and cached. An empty cachePath disables caching.
//
// The returned TokenSource re-authenticates when the JWT expires. It binds
// ctx, so ctx must outlive it.
func (a *Authenticator) OpenSession(ctx context.Context, cachePath string) (*Session, TokenSource, error) {
	sess := a.loadCached(cachePath)

	if sess == nil {
		var err error

		sess, err = a.Authenticate(ctx)
		if err != nil {
			return nil, nil, err
		}

		a.saveCached(cachePath, sess)
	}

	refresher := &reauthSource{ctx: ctx, auth: a, cachePath: cachePath}
	src := oauth2.ReuseTokenSource(sess.oauthToken(), refresher)

	return sess, &tokenBridge{src: src, logger: a.logger}, nil
}

// ForgetSession removes the cached session file.
func ForgetSession(cachePath string) error {
	return tokenfile.Remove(cachePath)
}

func (a *Authenticator) loadCached(cachePath string) *Session {
	if cachePath == "" {
		return nil
	}

	f, err := tokenfile.Load(cachePath)
	if err != nil {
		a.logger.Warn("ignoring unreadable session cache",
			slog.String("path", cachePath),
			slog.String("error", err.Error()),
		)

		return nil
	}

	if f == nil {
		return nil
	}

	if f.Meta[tokenfile.MetaLoginURL] != a.loginURL {
		a.logger.Debug("session cache belongs to another login URL", slog.String("path", cachePath))
		return nil
	}

	sess := sessionFromFile(f)
	if !sess.Valid() {
		a.logger.Debug("cached session expired", slog.Time("expiry", sess.Expiry))
		return nil
	}

	a.logger.Debug("reusing cached session",
		slog.String("org", sess.OrgName),
		slog.Time("expiry", sess.Expiry),
	)

	return sess
}

// saveCached persists sess. Failure to cache is logged, never fatal.
func (a *Authenticator) saveCached(cachePath string, sess *Session) {
	if cachePath == "" {
		return
	}

	f := &tokenfile.File{
		Token: sess.oauthToken(),
		Meta: map[string]string{
			tokenfile.MetaSessionID: sess.SessionID,
			tokenfile.MetaOrgID:     sess.OrgID,
			tokenfile.MetaOrgName:   sess.OrgName,
			tokenfile.MetaUserID:    sess.UserID,
			tokenfile.MetaUserName:  sess.UserName,
			tokenfile.MetaPodURL:    sess.PodURL,
			tokenfile.MetaLoginURL:  a.loginURL,
		},
	}

	if err := tokenfile.Save(cachePath, f); err != nil {
		a.logger.Warn("failed to cache session",
			slog.String("path", cachePath),
			slog.String("error", err.Error()),
		)
	}
}

func sessionFromFile(f *tokenfile.File) *Session {
	return &Session{
		SessionID: f.Meta[tokenfile.MetaSessionID],
		OrgID:     f.Meta[tokenfile.MetaOrgID],
		OrgName:   f.Meta[tokenfile.MetaOrgName],
		UserID:    f.Meta[tokenfile.MetaUserID],
		UserName:  f.Meta[tokenfile.MetaUserName],
		PodURL:    f.Meta[tokenfile.MetaPodURL],
		JWT:       f.Token.AccessToken,
		Expiry:    f.Token.Expiry,
	}
}

// reauthSource is the fallback oauth2.TokenSource behind ReuseTokenSource:
// it runs a full login whenever the cached JWT has expired.
type reauthSource struct {
	ctx       context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	auth      *Authenticator
	cachePath string
}

func (r *reauthSource) Token() (*oauth2.Token, error) {
	r.auth.logger.Info("session expired, re-authenticating")

	sess, err := r.auth.Authenticate(r.ctx)
	if err != nil {
		return nil, err
	}

	r.auth.saveCached(r.cachePath, sess)

	return sess.oauthToken(), nil
}

// tokenBridge adapts oauth2.TokenSource to idmc.TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("idmc: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
