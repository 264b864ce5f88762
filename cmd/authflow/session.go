package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/kratos"
	promexport "github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Sign in, sign out and inspect the mirrored session",
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a password and persist the session",
	RunE:  runSessionLogin,
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the persisted session and clear it",
	RunE:  runSessionLogout,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted session",
	RunE:  runSessionShow,
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the session until it is revoked or interrupted",
	Long: `Restore the persisted session, then poll Kratos and print every change.
With --metrics-addr, Prometheus metrics are served at /metrics.`,
	RunE: runSessionWatch,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLoginCmd, sessionLogoutCmd, sessionShowCmd, sessionWatchCmd)

	sessionLoginCmd.Flags().String("identifier", "", "email or username")
	sessionLoginCmd.Flags().String("password", "", "password (default: $AUTHFLOW_PASSWORD)")
	_ = sessionLoginCmd.MarkFlagRequired("identifier")

	sessionShowCmd.Flags().Bool("json", false, "output as JSON")

	sessionWatchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func runSessionLogin(cmd *cobra.Command, args []string) error {
	identifier, _ := cmd.Flags().GetString("identifier")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("AUTHFLOW_PASSWORD")
	}
	if password == "" {
		return errors.New("password required (--password or AUTHFLOW_PASSWORD)")
	}

	out := cmd.OutOrStdout()
	rt, err := newRuntime(cmd.Context(), out, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if err := rt.client.Start(ctx); err != nil {
		return err
	}
	if _, err := rt.svc.SignIn(ctx, identifier, password); err != nil {
		return err
	}
	if rt.client.Sync().Dirty() {
		return errors.New("signed in, but the session could not be persisted")
	}

	id, ok := rt.client.Session().Current()
	if !ok {
		return errors.New("signed in, but no identity was published")
	}
	return printIdentity(out, id, false)
}

func runSessionLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	rt, err := newRuntime(cmd.Context(), out, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	id, err := rt.client.RestoreSession(ctx)
	if errors.Is(err, authflow.ErrSessionNotFound) {
		fmt.Fprintln(out, "not signed in")
		return nil
	}
	if err != nil {
		return err
	}
	if err := rt.client.Start(ctx); err != nil {
		return err
	}

	if _, err := rt.svc.Restore(ctx, id.Token); err != nil {
		if !errors.Is(err, kratos.ErrUnauthorized) {
			return err
		}
		logger.InfoContext(ctx, "persisted session already revoked")
		if err := rt.store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
		return nil
	}

	if err := rt.svc.SignOut(ctx); err != nil {
		return err
	}
	if rt.client.Sync().Dirty() {
		return errors.New("signed out, but the session could not be cleared")
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	rt, err := newRuntime(cmd.Context(), out, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.client.RestoreSession(cmd.Context())
	if errors.Is(err, authflow.ErrSessionNotFound) {
		fmt.Fprintln(out, "not signed in")
		return nil
	}
	if err != nil {
		return err
	}
	return printIdentity(out, id, asJSON)
}

func runSessionWatch(cmd *cobra.Command, args []string) error {
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	out := cmd.OutOrStdout()

	rt, err := newRuntime(cmd.Context(), out, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux(rt.client),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	cancel := rt.client.Session().Subscribe(func(id authflow.Identity, ok bool) {
		if !ok {
			fmt.Fprintln(out, "signed out")
			stop()
			return
		}
		fmt.Fprintf(out, "signed in as %s\n", id.UID)
	})
	defer cancel()

	if err := rt.client.Start(ctx); err != nil {
		return err
	}

	id, err := rt.client.RestoreSession(ctx)
	if errors.Is(err, authflow.ErrSessionNotFound) {
		fmt.Fprintln(out, "not signed in")
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := rt.svc.Restore(ctx, id.Token); err != nil {
		return err
	}

	if err := rt.svc.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func metricsMux(client *authflow.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewExporter(client).Handler())
	return mux
}

type identityView struct {
	UID       string     `json:"uid"`
	Email     string     `json:"email,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func printIdentity(w io.Writer, id authflow.Identity, asJSON bool) error {
	view := identityView{UID: id.UID, Email: id.Email, SessionID: id.SessionID}
	if !id.ExpiresAt.IsZero() {
		exp := id.ExpiresAt.UTC()
		view.ExpiresAt = &exp
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Fprintf(w, "uid:     %s\n", view.UID)
	if view.Email != "" {
		fmt.Fprintf(w, "email:   %s\n", view.Email)
	}
	if view.SessionID != "" {
		fmt.Fprintf(w, "session: %s\n", view.SessionID)
	}
	if view.ExpiresAt != nil {
		fmt.Fprintf(w, "expires: %s\n", view.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
