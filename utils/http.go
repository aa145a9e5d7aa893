package utils

import (
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

type HTTPClientOption func(*http.Client, *http.Transport)

func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *http.Client, _ *http.Transport) {
		c.Timeout = timeout
	}
}

func WithMaxIdleConnsPerHost(n int) HTTPClientOption {
	return func(_ *http.Client, t *http.Transport) {
		t.MaxIdleConnsPerHost = n
	}
}

func NewHTTPClient(opts ...HTTPClientOption) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	client := &http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
	}
	for _, opt := range opts {
		opt(client, transport)
	}
	return client
}

func DefaultHTTPClient() *http.Client {
	return NewHTTPClient()
}
