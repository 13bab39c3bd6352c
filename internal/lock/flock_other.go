//go:build !unix && !windows

package lock

import "os"

// Platforms without advisory locks only get in-process exclusion.
func tryLock(f *os.File) error { return nil }

func unlock(f *os.File) error { return nil }
