package loadwatchsdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// RunJob triggers job on the server. A non-zero at overrides the reference
// time the job computes its slot and report from.
func (c *Client) RunJob(ctx context.Context, job string, at time.Time) (*JobResult, error) {
	path := "/v1/jobs/" + url.PathEscape(job) + "/run"
	if !at.IsZero() {
		path += "?at=" + url.QueryEscape(at.Format(time.RFC3339))
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, nil, map[string]string{
		"Authorization": "Bearer " + c.JobsToken,
	})
	if err != nil {
		return nil, err
	}

	var res JobResult
	if err := decodeJSON(resp, &res, http.StatusOK); err != nil {
		return nil, err
	}

	return &res, nil
}
