package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// loadImage reads a local cover image and returns it as a data URL.
// Only image/* content is accepted, judged by the file's bytes rather than
// its extension.
func loadImage(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open cover image")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "stat cover image")
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, not an image", path)
	}
	if info.Size() > maxBytes {
		return "", fmt.Errorf("%s is %d KB; covers are limited to %d KB", path, info.Size()/1024, maxBytes/1024)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", errors.Wrap(err, "read cover image")
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%s grew past %d KB while reading", path, maxBytes/1024)
	}

	mediaType := http.DetectContentType(data)
	mediaType, _, _ = strings.Cut(mediaType, ";")
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image (detected %s)", path, mediaType)
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
