package enrichment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultTimeoutSeconds = 10

// errStatus marks a non-2xx provider response so callers can log the code.
type errStatus struct {
	code int
}

func (e errStatus) Error() string {
	return fmt.Sprintf("provider returned status %d", e.code)
}

// doJSON executes req and decodes a 2xx JSON body into out. A 404 is reported
// as found=false with no error, since "no record for this property" is a
// normal answer from every register this package talks to.
func doJSON(client *http.Client, req *http.Request, out any) (found bool, err error) {
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return false, errStatus{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}
