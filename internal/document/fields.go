// Package document maps typed records to the flat field sets stored in an
// index and back.
//
// Mapping is pure: no function here performs I/O. Every value is a string;
// dates go through EncodeDate so that string order equals time order.
package document

import (
	"sort"
)

// Reserved field names. Collaborators build queries against these.
const (
	FieldID           = "id"
	FieldLastUpdate   = "lastUpdate"
	FieldPluginPrefix = "pluginPrefix"
	FieldChecksum     = "checksum"
	FieldGroupID      = "groupId"
	FieldArtifactID   = "artifactId"
	FieldVersion      = "version"
	FieldRepositoryID = "repositoryId"
)

// Fields owned by the mapper in addition to the reserved names.
const (
	FieldVersions          = "versions"
	FieldLatest            = "latest"
	FieldRelease           = "release"
	FieldSnapshotTimestamp = "snapshotTimestamp"
	FieldBuildNumber       = "buildNumber"
	FieldClassifier        = "classifier"
	FieldType              = "type"
	FieldSize              = "size"
)

// multiValued lists the fields that may carry more than one value.
var multiValued = map[string]bool{
	FieldPluginPrefix: true,
	FieldVersions:     true,
}

// KnownFields returns every field name the mapper writes, sorted.
func KnownFields() []string {
	names := []string{
		FieldID, FieldLastUpdate, FieldPluginPrefix, FieldChecksum, FieldGroupID,
		FieldArtifactID, FieldVersion, FieldRepositoryID, FieldVersions, FieldLatest,
		FieldRelease, FieldSnapshotTimestamp, FieldBuildNumber, FieldClassifier,
		FieldType, FieldSize,
	}
	sort.Strings(names)
	return names
}

// IsMultiValued reports whether name may hold several values.
func IsMultiValued(name string) bool {
	return multiValued[name]
}

// Fields is a document: field name to values in write order.
type Fields map[string][]string

// Get returns the first value of name, or "" if absent.
func (f Fields) Get(name string) string {
	if vs := f[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns all values of name in write order.
func (f Fields) Values(name string) []string {
	return f[name]
}

// Has reports whether name has at least one value.
func (f Fields) Has(name string) bool {
	return len(f[name]) > 0
}

// Add appends values to name.
func (f Fields) Add(name string, values ...string) {
	if len(values) == 0 {
		return
	}
	f[name] = append(f[name], values...)
}

// Set replaces name with a single value. An empty value removes the field.
func (f Fields) Set(name, value string) {
	if value == "" {
		delete(f, name)
		return
	}
	f[name] = []string{value}
}

// Names returns the field names, sorted.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for name, vs := range f {
		out[name] = append([]string(nil), vs...)
	}
	return out
}

// Matches reports whether any value of name equals value.
func (f Fields) Matches(name, value string) bool {
	for _, v := range f[name] {
		if v == value {
			return true
		}
	}
	return false
}
