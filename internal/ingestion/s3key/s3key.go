// Package s3key decomposes storage object keys of the form
// <network>/<atlas>-v<version>/<folder>/<filename> into ingestion identities.
package s3key

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/yungbote/atlas-ingest/internal/domain/atlas"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

const keepFilename = ".keep"

var (
	atlasNamePattern    = regexp.MustCompile(`^(.+)-v(\d[\d.-]*)$`)
	atlasVersionPattern = regexp.MustCompile(`^([1-9]\d*)(?:[.-](0|[1-9]\d*))?$`)
	revisionSuffix      = regexp.MustCompile(`-r\d+(?:-wip-\d+)?(\.[A-Za-z0-9.]+)$`)
)

var folderFileTypes = map[string]atlas.FileType{
	"source-datasets":    atlas.FileTypeSourceDataset,
	"integrated-objects": atlas.FileTypeIntegratedObject,
	"manifests":          atlas.FileTypeIngestManifest,
}

// Path is a key split into its structural segments.
type Path struct {
	Network              string
	AtlasNameWithVersion string
	FolderType           string
	Filename             string
}

// Version is a parsed atlas version.
type Version struct {
	Generation int
	Revision   int
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Generation, v.Revision) }

// Object is everything the ledger needs from a key.
type Object struct {
	Key            string
	Network        string
	AtlasShortName string
	Version        Version
	FileType       atlas.FileType
	Filename       string
	BaseFilename   string
}

// DecodeEventKey unescapes an object key as delivered in storage event records,
// where spaces arrive as '+' and other bytes percent-encoded.
func DecodeEventKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", apierr.BadRequest("invalid_key", "Invalid S3 key encoding %q: %v", raw, err)
	}
	return key, nil
}

// IsKeep reports whether the key names a folder placeholder that must be ignored.
func IsKeep(key string) bool {
	i := strings.LastIndex(key, "/")
	return key[i+1:] == keepFilename
}

// ParseKeyPath splits key into network, atlas name, folder and filename. Anything past
// the folder segment belongs to the filename.
func ParseKeyPath(key string) (Path, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 4 {
		return Path{}, apierr.BadRequest("invalid_key", "Invalid S3 key %q: expected network/atlas/folder/filename", key)
	}
	for _, p := range parts {
		if p == "" {
			return Path{}, apierr.BadRequest("invalid_key", "Invalid S3 key %q: empty path segment", key)
		}
	}
	if !atlas.IsNetwork(parts[0]) {
		return Path{}, apierr.BadRequest("invalid_network", "Invalid S3 key %q: unknown network %q", key, parts[0])
	}
	return Path{
		Network:              parts[0],
		AtlasNameWithVersion: parts[1],
		FolderType:           parts[2],
		Filename:             strings.Join(parts[3:], "/"),
	}, nil
}

// ParseAtlasName splits "<name>-v<version>" into the base name and the raw version.
func ParseAtlasName(nameWithVersion string) (string, string, error) {
	m := atlasNamePattern.FindStringSubmatch(nameWithVersion)
	if m == nil {
		return "", "", apierr.BadRequest("invalid_atlas_name", "Invalid atlas name %q: expected <name>-v<version>", nameWithVersion)
	}
	return m[1], m[2], nil
}

// ParseAtlasVersion accepts "N", "N.M" and "N-M" where N is positive and neither part
// has a leading zero.
func ParseAtlasVersion(raw string) (Version, error) {
	m := atlasVersionPattern.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, invalidVersion(raw)
	}
	gen, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, invalidVersion(raw)
	}
	v := Version{Generation: gen}
	if m[2] != "" {
		if v.Revision, err = strconv.Atoi(m[2]); err != nil {
			return Version{}, invalidVersion(raw)
		}
	}
	return v, nil
}

func invalidVersion(raw string) error {
	return apierr.BadRequest("invalid_atlas_version", "Invalid atlas version %q", raw)
}

func DetermineFileType(folderType string) (atlas.FileType, error) {
	ft, ok := folderFileTypes[folderType]
	if !ok {
		return "", apierr.BadRequest("invalid_folder", "Unknown folder type %q", folderType)
	}
	return ft, nil
}

// StripRevisionSuffix removes a -r<N> or -r<N>-wip-<M> that sits immediately before the
// extension of the last path element. Names without an extension are returned unchanged.
func StripRevisionSuffix(filename string) string {
	dir, name := "", filename
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		dir, name = filename[:i+1], filename[i+1:]
	}
	loc := revisionSuffix.FindStringSubmatchIndex(name)
	if loc == nil || loc[0] == 0 {
		return filename
	}
	return dir + name[:loc[0]] + name[loc[2]:loc[3]]
}

// Parse runs the full key grammar.
func Parse(key string) (Object, error) {
	p, err := ParseKeyPath(key)
	if err != nil {
		return Object{}, err
	}
	base, rawVersion, err := ParseAtlasName(p.AtlasNameWithVersion)
	if err != nil {
		return Object{}, err
	}
	v, err := ParseAtlasVersion(rawVersion)
	if err != nil {
		return Object{}, err
	}
	ft, err := DetermineFileType(p.FolderType)
	if err != nil {
		return Object{}, err
	}
	return Object{
		Key:            key,
		Network:        p.Network,
		AtlasShortName: strings.ToLower(base),
		Version:        v,
		FileType:       ft,
		Filename:       p.Filename,
		BaseFilename:   StripRevisionSuffix(p.Filename),
	}, nil
}
