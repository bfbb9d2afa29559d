package backends

import "strings"

// MetadataKind identifies one kind of metadata an operator may report
type MetadataKind uint8

const (
	MetaVisibility MetadataKind = 1 << iota
	MetaSize
	MetaLastModified
	MetaMimeType
)

var metadataKindNames = []struct {
	kind MetadataKind
	name string
}{
	{MetaVisibility, "visibility"},
	{MetaSize, "size"},
	{MetaLastModified, "last_modified"},
	{MetaMimeType, "mimetype"},
}

func (k MetadataKind) String() string {
	for _, n := range metadataKindNames {
		if n.kind == k {
			return n.name
		}
	}
	return "unknown"
}

// Capabilities is the set of metadata kinds an operator supports
type Capabilities uint8

// AllCapabilities is the descriptor of a backend that reports every metadata kind
const AllCapabilities = Capabilities(MetaVisibility | MetaSize | MetaLastModified | MetaMimeType)

// Has reports whether kind is part of the set
func (c Capabilities) Has(kind MetadataKind) bool {
	return c&Capabilities(kind) != 0
}

// Without returns the set with kind removed
func (c Capabilities) Without(kind MetadataKind) Capabilities {
	return c &^ Capabilities(kind)
}

func (c Capabilities) String() string {
	var names []string
	for _, n := range metadataKindNames {
		if c.Has(n.kind) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
