package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
)

// apiSession is an authenticated CDGC client and the IDMC session behind it.
type apiSession struct {
	Client  *idmc.Client
	Session *idmc.Session
}

// httpClient returns an HTTP client bounded by the configured timeout.
func (cc *CLIContext) httpClient() *http.Client {
	return &http.Client{Timeout: cc.Cfg.HTTPTimeout}
}

func (cc *CLIContext) authenticator(hc *http.Client) *idmc.Authenticator {
	return idmc.NewAuthenticator(
		cc.Cfg.LoginURL, cc.Cfg.PodAPIURL,
		cc.Cfg.Username, cc.Cfg.Password,
		hc, cc.Logger, cc.Cfg.UserAgent,
	)
}

// openAPISession logs in (or reuses the cached session) and returns a CDGC
// client scoped to the session's organization. ctx must outlive the client
// because token refresh re-authenticates with it.
func openAPISession(ctx context.Context, cc *CLIContext) (*apiSession, error) {
	hc := cc.httpClient()

	sess, ts, err := cc.authenticator(hc).OpenSession(ctx, cc.Cfg.SessionCache)
	if err != nil {
		return nil, err
	}

	cc.Logger.Info("authenticated",
		slog.String("org", sess.OrgName),
		slog.String("user", sess.UserName),
	)

	client := idmc.NewClient(cc.Cfg.CDGCAPIURL, hc, ts, cc.Logger, cc.Cfg.UserAgent).
		WithOrgID(sess.OrgID)

	return &apiSession{Client: client, Session: sess}, nil
}
