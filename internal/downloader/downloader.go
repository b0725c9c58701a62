// Package downloader fetches remote tensor files for import.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// IsRemote reports whether src names an http(s) resource.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Download writes url to out. The file appears under its final name only
// after the body has been fully received.
func Download(ctx context.Context, url, out string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloader: %s: %s", url, resp.Status)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".cuv-download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("downloader: %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return err
	}
	klog.V(2).Infof("downloader: %s -> %s (%d bytes)", url, out, n)
	return nil
}

// Fetch returns a local path for src, downloading it into dir when it is
// remote.
func Fetch(ctx context.Context, src, dir string) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}
	name := filepath.Base(strings.SplitN(src, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "download.safetensors"
	}
	out := filepath.Join(dir, name)
	return out, Download(ctx, src, out)
}
