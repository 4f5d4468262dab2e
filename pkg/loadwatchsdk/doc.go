/*
Package loadwatchsdk is a client for the loadwatch operations API.

It covers the endpoints an operator or an external scheduler needs:

  - GetLiveness and GetReadiness for /livez and /readyz
  - RunJob for POST /v1/jobs/{job}/run, authenticated with the jobs token

Errors from the service are returned as *APIError so callers can branch on
the HTTP status or the machine-readable code:

	res, err := client.RunJob(ctx, "summary", time.Time{})
	var apiErr *loadwatchsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// feature disabled or unknown job
	}
*/
package loadwatchsdk
