//go:build !unix

package workspace

import (
	"fmt"
	"os"
)

// CheckWritable reports whether dir exists and is a directory.
func CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
