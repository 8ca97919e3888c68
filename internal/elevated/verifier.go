package elevated

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Verifier asks whether an elevated token is currently valid. An error
// means the answer is unknown; callers treat it exactly like false.
type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// LocalVerifier checks tokens against the in-process TokenService.
type LocalVerifier struct {
	tokens *TokenService
}

func NewLocalVerifier(tokens *TokenService) *LocalVerifier {
	return &LocalVerifier{tokens: tokens}
}

// Verify returns false without error for expired or malformed tokens.
func (v *LocalVerifier) Verify(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := v.tokens.Validate(token); err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RemoteVerifier posts the token as a bearer credential to a verification
// endpoint that answers {"verified": bool}.
type RemoteVerifier struct {
	url    string
	client *http.Client
}

func NewRemoteVerifier(url string, client *http.Client) *RemoteVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteVerifier{url: url, client: client}
}

type verifyResponse struct {
	Verified *bool `json:"verified"`
}

// Verify treats any non-200 status or a body without "verified" as an error.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(nil))
	if err != nil {
		return false, fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling verification endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("verification endpoint returned %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return false, fmt.Errorf("decoding verification response: %w", err)
	}
	if body.Verified == nil {
		return false, errors.New("verification response missing verified field")
	}
	return *body.Verified, nil
}
