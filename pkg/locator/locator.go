// Package locator resolves file references into local paths and object storage locations.
package locator

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Kind identifies where a file lives
type Kind int

const (
	KindLocal Kind = iota
	KindS3
	KindGCS
	KindHTTP
)

// String returns a string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindS3:
		return "s3"
	case KindGCS:
		return "gcs"
	case KindHTTP:
		return "http"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// ErrInvalidPath is returned for references that cannot name a file
var ErrInvalidPath = errors.New("invalid file path")

// Ref is a parsed file reference
type Ref struct {
	Kind   Kind
	Raw    string // Reference as given, trimmed
	Path   string // Local: absolute cleaned path. Remote: normalized URL
	Bucket string // S3 and GCS only
	Key    string // S3 and GCS only
}

// Parse validates and normalizes a file reference.
// Supported forms are local paths, file://, s3://, gs://, gcs://, http:// and https://.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(raw, 0) {
		return Ref{}, fmt.Errorf("%w: path contains a NUL byte", ErrInvalidPath)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return parseBucketRef(raw, raw[len("s3://"):], KindS3, "s3://")
	case strings.HasPrefix(lower, "gs://"):
		return parseBucketRef(raw, raw[len("gs://"):], KindGCS, "gs://")
	case strings.HasPrefix(lower, "gcs://"):
		return parseBucketRef(raw, raw[len("gcs://"):], KindGCS, "gs://")
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if len(raw) <= strings.Index(raw, "://")+3 {
			return Ref{}, fmt.Errorf("%w: missing host in %q", ErrInvalidPath, raw)
		}
		return Ref{Kind: KindHTTP, Raw: raw, Path: raw}, nil
	case strings.HasPrefix(lower, "file://"):
		raw = raw[len("file://"):]
		if raw == "" {
			return Ref{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
		}
	case strings.Contains(lower, "://"):
		return Ref{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidPath, raw)
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return Ref{Kind: KindLocal, Raw: raw, Path: abs}, nil
}

func parseBucketRef(raw, rest string, kind Kind, scheme string) (Ref, error) {
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || strings.Trim(key, "/") == "" {
		return Ref{}, fmt.Errorf("%w: %s reference needs a bucket and a key: %q", ErrInvalidPath, kind, raw)
	}
	return Ref{
		Kind:   kind,
		Raw:    raw,
		Path:   scheme + bucket + "/" + key,
		Bucket: bucket,
		Key:    key,
	}, nil
}

// IsRemote reports whether the file lives outside the local filesystem
func (r Ref) IsRemote() bool {
	return r.Kind != KindLocal
}

// IsGlob reports whether the reference names several files by pattern.
// HTTP URLs are never patterns; '?' starts their query string.
func (r Ref) IsGlob() bool {
	if r.Kind == KindHTTP {
		return false
	}
	target := r.Path
	if r.Kind == KindS3 || r.Kind == KindGCS {
		target = r.Key
	}
	return strings.ContainsAny(target, "*?[")
}

// Name returns the file name without directory or extension
func (r Ref) Name() string {
	base := path.Base(filepath.ToSlash(r.Path))
	if r.Kind == KindHTTP {
		base = path.Base(strings.SplitN(strings.SplitN(r.Path, "?", 2)[0], "#", 2)[0])
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// Same reports whether both references name the same file
func (r Ref) Same(other Ref) bool {
	return r.Kind == other.Kind && r.Path == other.Path
}

// String returns the normalized reference
func (r Ref) String() string {
	return r.Path
}

// DefaultOutput returns <outputDir>/<name>_edited.parquet for a source reference
func DefaultOutput(source Ref, outputDir string) (Ref, error) {
	name := source.Name()
	if name == "" || name == "." || name == "/" || source.IsGlob() {
		name = "output"
	}
	if strings.Contains(outputDir, "://") {
		return Parse(strings.TrimSuffix(outputDir, "/") + "/" + name + "_edited.parquet")
	}
	return Parse(filepath.Join(outputDir, name+"_edited.parquet"))
}
