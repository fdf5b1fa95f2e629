package cache

import (
	_ "crypto/sha256" // Register sha256 for go-digest
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

const (
	originalNamespace = "original"
	scaledNamespace   = "scaled"
)

// Naming maps resources to ByteStore keys.
type Naming interface {
	Original(url string) string
	Scaled(key ResourceKey) string
}

// NewNaming returns the naming strategy registered under name.
func NewNaming(name string) (Naming, error) {
	switch name {
	case "", "basename":
		return BasenameNaming{}, nil
	case "digest":
		return DigestNaming{}, nil
	default:
		return nil, fmt.Errorf("unknown cache naming: %s (supported: basename, digest)", name)
	}
}

// BasenameNaming names entries after the last "/" segment of the URL.
// Distinct URLs ending in the same segment share entries.
type BasenameNaming struct{}

func (BasenameNaming) Original(url string) string {
	return originalNamespace + "/" + basename(url)
}

func (BasenameNaming) Scaled(key ResourceKey) string {
	return fmt.Sprintf("%s/%s%dx%d", scaledNamespace, basename(key.URL), key.Width, key.Height)
}

// DigestNaming names entries after the sha256 digest of the full URL.
type DigestNaming struct{}

func (DigestNaming) Original(url string) string {
	return originalNamespace + "/" + digestName(url)
}

func (DigestNaming) Scaled(key ResourceKey) string {
	return fmt.Sprintf("%s/%s%dx%d", scaledNamespace, digestName(key.URL), key.Width, key.Height)
}

func digestName(url string) string {
	return digest.FromString(url).Encoded()
}

// basename returns a filesystem-safe last segment of url.
// Falls back to the digest name when nothing usable remains.
func basename(url string) string {
	s := url[strings.LastIndex(url, "/")+1:]
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "\x00", "")
	if s == "" || s == "." {
		return digestName(url)
	}
	return s
}
