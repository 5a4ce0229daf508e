//go:build !unix && !windows

package tagfile

func isCrossDevice(err error) bool {
	return false
}
