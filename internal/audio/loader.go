package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/afero"
)

// Loader opens track URLs. http(s) URLs are fetched over the network;
// file:// URLs and plain paths are read from Fs.
type Loader struct {
	Fs     afero.Fs
	Client *http.Client
}

// Open returns a reader for the track at ref and the name used to pick a
// decoder.
func (l *Loader) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	u, err := url.Parse(ref)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l.fetch(ctx, ref, u.Path)
		case "file":
			ref = u.Path
		}
	}

	f, err := l.Fs.Open(ref)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", ref, err)
	}
	return f, ref, nil
}

func (l *Loader) fetch(ctx context.Context, ref, name string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	return resp.Body, name, nil
}
