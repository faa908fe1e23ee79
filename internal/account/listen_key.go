package account

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"spot-hedge-bot/internal/binance/rest"
)

const userDataStreamPath = "/api/v3/userDataStream"

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

func createListenKey(ctx context.Context, client *rest.Client) (string, error) {
	var resp listenKeyResponse
	if err := client.DoAPIKey(ctx, http.MethodPost, userDataStreamPath, url.Values{}, &resp); err != nil {
		return "", err
	}
	if resp.ListenKey == "" {
		return "", errors.New("empty listen key")
	}
	return resp.ListenKey, nil
}

func keepAliveListenKey(ctx context.Context, client *rest.Client, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	return client.DoAPIKey(ctx, http.MethodPut, userDataStreamPath, params, nil)
}
