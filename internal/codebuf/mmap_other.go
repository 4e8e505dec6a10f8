//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package codebuf

// mapCode falls back to heap memory where anonymous mappings are unavailable.
func mapCode(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func protectCode(_ []byte) error { return nil }

func unmapCode(_ []byte) error { return nil }
