// Package dispatcher calls the pipeline dispatcher API with the access token
// of the current login.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/openkcm/oidc-login/internal/httpclient"
	"github.com/openkcm/oidc-login/internal/tokens"
)

const (
	statusPath   = "/api/nxfutil/status"
	dispatchPath = "/api/nxfutil/dispatch"
)

var ErrNotLoggedIn = errors.New("not logged in")

type Client struct {
	http   *httpclient.Client
	tokens *tokens.Slot
}

func NewClient(httpClient *httpclient.Client, slot *tokens.Slot) *Client {
	return &Client{
		http:   httpClient,
		tokens: slot,
	}
}

// Status returns the latest messages of the dispatcher queue.
func (c *Client) Status(ctx context.Context, apiURL string, req StatusRequest) ([]Message, error) {
	u, err := url.JoinPath(apiURL, statusPath)
	if err != nil {
		return nil, fmt.Errorf("building status URL: %w", err)
	}

	var msgs []Message
	if err := c.post(ctx, u, req, &msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// Dispatch submits a pipeline run. With whatIf set the dispatcher only
// validates the request.
func (c *Client) Dispatch(ctx context.Context, apiURL string, whatIf bool, req DispatchRequest) (DispatchResponse, error) {
	u, err := url.JoinPath(apiURL, dispatchPath)
	if err != nil {
		return DispatchResponse{}, fmt.Errorf("building dispatch URL: %w", err)
	}
	u += "?whatif=" + strconv.FormatBool(whatIf)

	if req.ParametersJSON == nil {
		req.ParametersJSON = []Param{}
	}

	var res DispatchResponse
	if err := c.post(ctx, u, req, &res); err != nil {
		return DispatchResponse{}, err
	}

	return res, nil
}

func (c *Client) post(ctx context.Context, u string, body, into any) error {
	token, ok := c.tokens.AccessToken()
	if !ok {
		return ErrNotLoggedIn
	}

	resp, err := c.http.PostJSON(ctx, u, body, token)
	if err != nil {
		return err
	}

	if err := httpclient.CheckStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
