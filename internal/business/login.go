package business

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/authflow"
	"github.com/openkcm/oidc-login/internal/callback"
	"github.com/openkcm/oidc-login/internal/dispatcher"
	"github.com/openkcm/oidc-login/internal/httpclient"
	"github.com/openkcm/oidc-login/internal/workflows"
)

var ErrNoDispatcherURL = errors.New("dispatcher.apiURL is not configured")

func (a *App) withCorrelation(ctx context.Context) context.Context {
	return slogctx.With(ctx,
		"correlation_id", uuid.NewString(),
		"scope", a.proofs.Scope(),
		"issuer", a.client.IssuerURL,
	)
}

// Login runs the whole authorization code flow in this process: it serves
// the redirect URL locally, sends the user to the provider and completes on
// the callback.
func (a *App) Login(ctx context.Context) error {
	ctx = a.withCorrelation(ctx)

	srv, err := callback.NewServer(a.client.RedirectURL)
	if err != nil {
		return err
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	if err := srv.Start(serveCtx); err != nil {
		return err
	}

	client := a.client
	client.RedirectURL = srv.RedirectURL()

	session, err := a.flow.Begin(ctx, client)
	if err != nil {
		return err
	}

	if err := a.flow.PersistBeforeNavigate(ctx, session); err != nil {
		return err
	}

	if err := a.navigator.Navigate(ctx, session.AuthorizationURL); err != nil {
		return fmt.Errorf("navigating to the provider: %w", err)
	}

	timeout := a.cfg.Auth.CallbackTimeout
	if timeout <= 0 {
		timeout = callback.DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callbackURL, err := srv.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("waiting for the provider callback: %w", err)
	}

	return a.complete(ctx, client, callbackURL)
}

// LoginBegin persists the login proof and returns the authorization URL. The
// login is finished by LoginComplete, possibly in another process sharing
// the same store and scope.
func (a *App) LoginBegin(ctx context.Context) (string, error) {
	ctx = a.withCorrelation(ctx)

	session, err := a.flow.Begin(ctx, a.client)
	if err != nil {
		return "", err
	}

	if err := a.flow.PersistBeforeNavigate(ctx, session); err != nil {
		return "", err
	}

	if err := a.navigator.Navigate(ctx, session.AuthorizationURL); err != nil {
		return "", fmt.Errorf("navigating to the provider: %w", err)
	}

	return session.AuthorizationURL, nil
}

// LoginComplete finishes a login from the URL the provider redirected to.
func (a *App) LoginComplete(ctx context.Context, callbackURL string) error {
	ctx = a.withCorrelation(ctx)

	u, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("parsing callback URL: %w", err)
	}

	return a.complete(ctx, a.client, u)
}

func (a *App) complete(ctx context.Context, client authflow.Client, callbackURL *url.URL) error {
	session, err := a.flow.Complete(ctx, client, callbackURL)
	if err != nil {
		return err
	}

	if err := a.writer.Set(ctx, session.Tokens()); err != nil {
		slogctx.Warn(ctx, "Tokens not persisted, they are only valid in this process", "error", err)
	}

	slogctx.Info(ctx, "Login complete", "phase", session.Phase())
	_, _ = fmt.Fprintln(a.out, "Login successful.")

	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.flow.Logout(ctx, a.writer); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(a.out, "Logged out.")

	return nil
}

// Call sends an authenticated request and prints the outcome. A non-OK
// response left after the retries is reported, not returned as an error.
func (a *App) Call(ctx context.Context, method, target string, body any) (int, error) {
	token, ok := a.slot.AccessToken()
	if !ok {
		return 0, dispatcher.ErrNotLoggedIn
	}

	resp, err := a.api.Do(ctx, httpclient.Request{
		Method: method,
		URL:    target,
		Body:   body,
		Token:  token,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = fmt.Fprintf(a.out, "%s %s: %d, %s\n", method, target, resp.StatusCode, httpclient.DescribeStatus(resp.StatusCode))
		return resp.StatusCode, nil
	}

	_, _ = fmt.Fprintf(a.out, "%s %s: %d\n", method, target, resp.StatusCode)
	_, _ = io.Copy(a.out, resp.Body)

	return resp.StatusCode, nil
}

func (a *App) DispatcherStatus(ctx context.Context, req dispatcher.StatusRequest) ([]dispatcher.Message, error) {
	if a.cfg.Dispatcher.APIURL == "" {
		return nil, ErrNoDispatcherURL
	}

	msgs, err := a.dispatcher.Status(ctx, a.cfg.Dispatcher.APIURL, req)
	if err != nil {
		return nil, fmt.Errorf("dispatcher status: %w", err)
	}

	return msgs, nil
}

func (a *App) Dispatch(ctx context.Context, whatIf bool, req dispatcher.DispatchRequest) (dispatcher.DispatchResponse, error) {
	if a.cfg.Dispatcher.APIURL == "" {
		return dispatcher.DispatchResponse{}, ErrNoDispatcherURL
	}

	res, err := a.dispatcher.Dispatch(ctx, a.cfg.Dispatcher.APIURL, whatIf, req)
	if err != nil {
		return dispatcher.DispatchResponse{}, fmt.Errorf("dispatching pipeline: %w", err)
	}

	return res, nil
}

// Workflows lists the pipelines of a repository, ready to be dispatched.
func (a *App) Workflows(ctx context.Context, org, repo string) ([]workflows.Workflow, error) {
	wfs, err := a.workflows.Workflows(ctx, org, repo)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	return wfs, nil
}
