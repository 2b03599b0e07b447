package channels

import (
	"io"
	"net/http"
	"os"
)

// downloadToTemp fetches url's body into a local temp file so the context
// builder's "regular file + image MIME" inlining gate can stat it; chat
// platform attachment URLs are remote and otherwise never satisfy that
// gate. The caller owns cleanup of the returned path.
func downloadToTemp(url, pattern string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
