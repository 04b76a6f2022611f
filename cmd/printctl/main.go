// Command printctl is the controller CLI front-end: persistent flags in
// root.go, one file per verb, RootCmd.AddCommand in init(), driving
// printd's local net/http status/control surface.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// newHTTPClient returns the client every subcommand issues its request
// through, with a bounded timeout so a wedged daemon fails fast.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// doRequest issues method against addr+path, decoding a JSON response body
// into out (if non-nil) and returning an error for any non-2xx status.
func doRequest(method, path string, out any) error {
	req, err := http.NewRequest(method, addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", addr+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	Execute()
}
