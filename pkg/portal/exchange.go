package portal

import (
	"context"
	"net/http"
	"net/url"
)

const endpointExchange = "exchange"

type exchangeResponse struct {
	Token string `json:"token"`
}

// Login trades a username and password for a portal bearer token at the
// credential-exchange endpoint. It returns ErrInvalidCredentials when the
// exchange answers without a token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	u, err := url.Parse(c.config.ExchangeURL)
	if err != nil {
		return "", &UpstreamError{ErrorClass: ErrorClassContract, Message: "invalid exchange url", Err: err}
	}
	query := u.Query()
	query.Set("username", username)
	query.Set("password", password)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &UpstreamError{ErrorClass: ErrorClassContract, Message: "invalid exchange request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	var resp exchangeResponse
	if err := c.do(req, endpointExchange, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		c.logger.Info().Msg("Credential exchange returned no token")
		return "", ErrInvalidCredentials
	}
	return resp.Token, nil
}
