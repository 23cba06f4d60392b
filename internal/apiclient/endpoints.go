package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"autodl-console/internal/credstore"
)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ObtainToken exchanges username and password for a token pair and stores it.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	err := c.Do(ctx, http.MethodPost, "token/", map[string]string{
		"username": username,
		"password": password,
	}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.Access == "" {
		return TokenPair{}, errors.New("apiclient: token response without access token")
	}

	if err := c.store.Set(ctx, credstore.KeyAccessToken, pair.Access); err != nil {
		return TokenPair{}, fmt.Errorf("apiclient: store access token: %w", err)
	}
	if pair.Refresh != "" {
		if err := c.store.Set(ctx, credstore.KeyRefreshToken, pair.Refresh); err != nil {
			return TokenPair{}, fmt.Errorf("apiclient: store refresh token: %w", err)
		}
	}
	return pair, nil
}

// Hello returns the upstream greeting for the signed-in user.
func (c *Client) Hello(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.Do(ctx, http.MethodGet, "hello/", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

type Upload struct {
	ID         int64  `json:"id"`
	File       string `json:"file"`
	UploadedAt string `json:"uploaded_at"`
	UploadedBy string `json:"uploaded_by__username"`
}

type DashboardStats struct {
	TotalUsers        int      `json:"total_users"`
	TotalForwarders   int      `json:"total_forwarders"`
	TotalDestinations int      `json:"total_destinations"`
	TotalOrders       int      `json:"total_orders"`
	RecentUploads     []Upload `json:"recent_uploads"`
}

func (c *Client) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var out DashboardStats
	err := c.Do(ctx, http.MethodGet, "dashboard/stats/", nil, &out)
	return out, err
}

// RecoverAdmin resets or creates an admin account with the recovery key.
// It returns the upstream confirmation message.
func (c *Client) RecoverAdmin(ctx context.Context, secretKey, username, password string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.Do(ctx, http.MethodPost, "secret-recovery/", map[string]string{
		"secret_key": secretKey,
		"username":   username,
		"password":   password,
	}, &out)
	return out.Message, err
}
