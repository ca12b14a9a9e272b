package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"resty.dev/v3"

	"github.com/mbeoliero/singleton/api"
	"github.com/mbeoliero/singleton/domain/entity"
)

var ErrEmptyServer = errors.New("server address is empty")

// Client runs trials on a remote server through its http api.
type Client struct {
	client *resty.Client
}

func NewClient(server string, timeout time.Duration) (*Client, error) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		return nil, ErrEmptyServer
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}

	c := resty.New().
		SetBaseURL(server).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{client: c}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// envelope mirrors api.Response with a typed payload.
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (c *Client) RunTrial(ctx context.Context, req *api.RunTrialRequest) (*api.RunTrialResponse, error) {
	return post[*api.RunTrialResponse](ctx, c.client, "/api/v1/trials", req)
}

func (c *Client) RunAll(ctx context.Context, req *api.RunAllRequest) ([]*entity.Trial, error) {
	return post[[]*entity.Trial](ctx, c.client, "/api/v1/trials/all", req)
}

func post[T any](ctx context.Context, client *resty.Client, path string, body any) (T, error) {
	var out envelope[T]

	payload, err := sonic.Marshal(body)
	if err != nil {
		return out.Data, err
	}

	resp, err := client.R().SetContext(ctx).SetBody(payload).Post(path)
	if err != nil {
		return out.Data, fmt.Errorf("post %s failed: %w", path, err)
	}

	if err = sonic.Unmarshal(resp.Bytes(), &out); err != nil {
		return out.Data, fmt.Errorf("decode response failed, http status: %s, err: %w", resp.Status(), err)
	}
	if !resp.IsSuccess() {
		return out.Data, fmt.Errorf("http status: %s, message: %s", resp.Status(), out.Message)
	}
	return out.Data, nil
}
