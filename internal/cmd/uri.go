package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/quayside/s3glob/pkg/glob"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// ObjectURI represents a parsed cloud storage URI.
//
// Example inputs (the scheme is optional):
//   - s3://bucket/key/path.txt
//   - bucket/prefix/
//   - bucket/prefix/**/*.parquet
type ObjectURI struct {
	// Provider is the storage provider (e.g., "s3").
	Provider string

	// Bucket is the bucket name.
	Bucket string

	// Key is the object key or prefix.
	// May be empty for bucket root.
	Key string

	// Pattern is set if Key contains glob characters.
	// When set, Key is the text before the first glob character, cut back
	// to just after its last '/'.
	Pattern string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	if u.Pattern != "" {
		return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, u.Pattern)
	}
	if u.Key != "" {
		return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, u.Key)
	}
	return fmt.Sprintf("%s://%s/", u.Provider, u.Bucket)
}

// IsPattern returns true if the URI contains glob pattern characters.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix returns true if the URI represents a prefix (ends with /).
func (u *ObjectURI) IsPrefix() bool {
	return strings.HasSuffix(u.Key, "/") || u.Key == ""
}

// ParseURI parses a cloud storage URI into its components. The scheme is
// optional: "s3://bucket/key" and bare "bucket/key" are both accepted, the
// latter defaulting to the "s3" provider.
//
// We parse manually instead of reaching for net/url: glob metacharacters
// like `?` and `#` collide with query-string and fragment syntax there.
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	provider := "s3"
	remainder := uri
	if schemeEnd := strings.Index(uri, "://"); schemeEnd != -1 {
		provider = strings.ToLower(uri[:schemeEnd])
		if provider != "s3" {
			return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedProvider, provider)
		}
		remainder = uri[schemeEnd+3:]
	}

	if remainder == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}

	var bucket, key string
	if slashIdx := strings.Index(remainder, "/"); slashIdx == -1 {
		bucket = remainder
	} else {
		bucket = remainder[:slashIdx]
		key = remainder[slashIdx+1:]
	}

	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}

	result := &ObjectURI{
		Provider: provider,
		Bucket:   bucket,
	}

	if hasMetacharacters(key) && !doublestar.ValidatePattern(key) {
		return nil, fmt.Errorf("%w: malformed glob pattern %q", ErrInvalidURI, key)
	}

	prefix, isPattern, err := splitStaticPrefix(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURI, err)
	}
	if isPattern {
		result.Pattern = key
		result.Key = prefix
	} else {
		result.Key = key
	}

	return result, nil
}

// hasMetacharacters reports whether key contains any byte that could start
// a glob construct in either our grammar or doublestar's, cheaply enough to
// call on every ParseURI before reaching for the real parser.
func hasMetacharacters(key string) bool {
	return strings.ContainsAny(key, "*?[{")
}

// splitStaticPrefix parses key as a glob pattern over the "/" delimiter and
// reports whether the key actually contains any glob metacharacters, plus
// its static prefix: the whole key when it has none, otherwise the text
// before the first metacharacter cut back to just after its last '/'. It
// defers to pkg/glob's own grammar rather than a
// hand-rolled metacharacter scan, so URI parsing and planning never disagree
// about what counts as a pattern.
func splitStaticPrefix(key string) (prefix string, isPattern bool, err error) {
	segments, err := glob.Parse(key, '/')
	if err != nil {
		return "", false, err
	}

	var b strings.Builder
	for _, seg := range segments {
		switch {
		case seg.Kind == glob.Literal:
			b.WriteString(seg.Choices[0])
		case seg.Kind == glob.SyntheticAny:
			// Only a trailing delimiter forced this; not a user-specified glob.
			return b.String(), false, nil
		default:
			// Adjacent literals may have been merged into an alternation, so
			// derive the prefix from the raw key instead of the segments.
			static := key
			if i := strings.IndexAny(key, "*?[{"); i >= 0 {
				static = key[:i]
			}
			return static[:strings.LastIndexByte(static, '/')+1], true, nil
		}
	}
	return b.String(), false, nil
}
