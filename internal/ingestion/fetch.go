package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// getJSON executes req and decodes a 2xx JSON body into out. Unlike the
// enrichment lookups, a missing feed page is an error: the feed is the run's
// primary input, not an optional signal.
func getJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode feed response: %w", err)
	}
	return nil
}
