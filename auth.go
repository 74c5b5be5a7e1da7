package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with IDMC and cache the session",
		Long: `Log in with the configured username and INFORMATICA_PASSWORD, request a
CDGC token, and cache both so later commands skip the login round trip.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached session",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runLogout,
	}
}

// loginOutput is the JSON schema for `login --json`.
type loginOutput struct {
	OrgID    string    `json:"org_id"`
	OrgName  string    `json:"org_name"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	PodURL   string    `json:"pod_url"`
	Expiry   time.Time `json:"expiry"`
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// A fresh login is forced by dropping whatever was cached.
	if err := idmc.ForgetSession(cc.Cfg.SessionCache); err != nil {
		cc.Logger.Warn("could not remove cached session", slog.String("error", err.Error()))
	}

	api, err := openAPISession(ctx, cc)
	if err != nil {
		return err
	}

	return printSession(cc, api.Session)
}

func printSession(cc *CLIContext, sess *idmc.Session) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, loginOutput{
			OrgID:    sess.OrgID,
			OrgName:  sess.OrgName,
			UserID:   sess.UserID,
			UserName: sess.UserName,
			PodURL:   sess.PodURL,
			Expiry:   sess.Expiry,
		})
	}

	cc.Statusf("Login successful.\n")
	printSessionText(cc.Stdout, sess)

	return nil
}

func printSessionText(w io.Writer, sess *idmc.Session) {
	printTable(w, []string{"ORG", "USER", "POD", "TOKEN EXPIRES"}, [][]string{{
		sess.OrgName, sess.UserName, sess.PodURL, formatTime(sess.Expiry),
	}})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	if err := idmc.ForgetSession(cc.Cfg.SessionCache); err != nil {
		return err
	}

	cc.Logger.Info("session cache removed", slog.String("path", cc.Cfg.SessionCache))
	cc.Statusf("Logged out.\n")

	return nil
}
