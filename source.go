package imgcache

import (
	"fmt"
	"strconv"
)

// SourceKind selects the fetcher that resolves a Source.
type SourceKind uint8

const (
	// SourceNetwork locators are http(s) URLs.
	SourceNetwork SourceKind = iota
	// SourceFile locators are local paths.
	SourceFile
	// SourceResource locators name files bundled with the program.
	SourceResource
	// SourceBlob locators name objects in the configured blob store.
	SourceBlob
)

func (k SourceKind) String() string {
	switch k {
	case SourceNetwork:
		return "net"
	case SourceFile:
		return "file"
	case SourceResource:
		return "res"
	case SourceBlob:
		return "blob"
	default:
		return "kind" + strconv.Itoa(int(k))
	}
}

// Source identifies an image independent of the size it is shown at.
type Source struct {
	Kind    SourceKind
	Locator string
}

// Network returns a Source for an http(s) URL.
func Network(url string) Source { return Source{Kind: SourceNetwork, Locator: url} }

// File returns a Source for a local path.
func File(path string) Source { return Source{Kind: SourceFile, Locator: path} }

// Resource returns a Source for a bundled file.
func Resource(name string) Source { return Source{Kind: SourceResource, Locator: name} }

// Blob returns a Source for a blob store object.
func Blob(name string) Source { return Source{Kind: SourceBlob, Locator: name} }

// Key derives the cache key for showing s at width x height. Different
// target sizes always produce different keys.
func (s Source) Key(width, height int) string {
	return fmt.Sprintf("%s:%s_%d_%d", s.Kind, s.Locator, width, height)
}

func (s Source) String() string {
	return s.Kind.String() + ":" + s.Locator
}
