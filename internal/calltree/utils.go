package calltree

import (
	"fmt"
	"path"
)

// imageBaseName returns the basename of an image path. Process images are
// often recorded with their full path, which carries installation specific
// components.
func imageBaseName(image string) string {
	if image == "" {
		return ""
	}
	return path.Base(image)
}

// RootName is the display name of the synthetic root of a process tree.
func RootName(name string, osID uint32) string {
	return fmt.Sprintf("%s (PID: %d)", imageBaseName(name), osID)
}
