package backends

import "os"

// PortableVisibility converts between Visibility and Unix permission bits using a
// {type x visibility} permission table.
type PortableVisibility struct {
	FilePublic            os.FileMode
	FilePrivate           os.FileMode
	DirectoryPublic       os.FileMode
	DirectoryPrivate      os.FileMode
	DefaultForDirectories Visibility
}

// DefaultPortableVisibility returns the conventional 0644/0600/0755/0700 table
func DefaultPortableVisibility() PortableVisibility {
	return PortableVisibility{
		FilePublic:            0644,
		FilePrivate:           0600,
		DirectoryPublic:       0755,
		DirectoryPrivate:      0700,
		DefaultForDirectories: VisibilityPrivate,
	}
}

// ForFile returns the permission bits of a file with the given visibility
func (p PortableVisibility) ForFile(v Visibility) os.FileMode {
	if v == VisibilityPublic {
		return p.FilePublic
	}
	return p.FilePrivate
}

// ForDirectory returns the permission bits of a directory with the given visibility
func (p PortableVisibility) ForDirectory(v Visibility) os.FileMode {
	if v == VisibilityPublic {
		return p.DirectoryPublic
	}
	return p.DirectoryPrivate
}

// InverseForFile maps file permission bits back to a visibility.
// Unknown permission values are treated as public.
func (p PortableVisibility) InverseForFile(perm os.FileMode) Visibility {
	switch perm.Perm() {
	case p.FilePublic:
		return VisibilityPublic
	case p.FilePrivate:
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// InverseForDirectory maps directory permission bits back to a visibility
func (p PortableVisibility) InverseForDirectory(perm os.FileMode) Visibility {
	switch perm.Perm() {
	case p.DirectoryPublic:
		return VisibilityPublic
	case p.DirectoryPrivate:
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// DirectoryVisibility returns v, or the default for directories when v is empty
func (p PortableVisibility) DirectoryVisibility(v Visibility) Visibility {
	if v == "" {
		if p.DefaultForDirectories == "" {
			return VisibilityPrivate
		}
		return p.DefaultForDirectories
	}
	return v
}
