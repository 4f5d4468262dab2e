package loadwatchsdk

import (
	"net/http"
	"strings"
	"time"
)

// Client talks to one loadwatch instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// JobsToken is sent as a bearer token on job triggers.
	JobsToken string
}

func NewClient(baseURL, jobsToken string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			// Jobs push to every recipient before answering.
			Timeout: 60 * time.Second,
		},
		JobsToken: jobsToken,
	}
}
