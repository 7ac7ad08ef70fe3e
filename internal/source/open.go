package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Open returns a reader for uri: a local path or gs://bucket/object.
// The format follows the extension: .csv, .jsonl or .json (array or lines).
func Open(ctx context.Context, uri string) (ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	name := uri
	if strings.HasPrefix(uri, "gs://") {
		var bucket, object string
		bucket, object, err = ParseGCSURI(uri)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		name = object
		rc, err = openGCS(ctx, bucket, object)
	} else {
		rc, err = os.Open(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("Open %s: %w", uri, err)
	}

	src, err := decode(rc, strings.ToLower(path.Ext(name)))
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("Open %s: %w", uri, err)
	}
	return src, nil
}

func decode(rc io.ReadCloser, ext string) (ReadCloser, error) {
	switch ext {
	case ".csv":
		return CSV(rc), nil
	case ".jsonl", ".ndjson":
		return JSONLines(rc), nil
	case ".json":
		br := bufio.NewReader(rc)
		if startsWithArray(br) {
			defer rc.Close()
			src, err := JSONArray(br)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
		return JSONLines(readCloser{Reader: br, Closer: rc}), nil
	}
	return nil, fmt.Errorf("unsupported input format %q", ext)
}

func startsWithArray(br *bufio.Reader) bool {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return false
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		default:
			return b[0] == '['
		}
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// gcsObject closes the object reader and its client together.
type gcsObject struct {
	*storage.Reader
	client *storage.Client
}

func (o gcsObject) Close() error {
	err := o.Reader.Close()
	if cerr := o.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// openGCS streams an object using Application Default Credentials.
func openGCS(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open object %s/%s: %w", bucket, object, err)
	}
	return gcsObject{Reader: r, client: client}, nil
}
