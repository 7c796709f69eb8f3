package monitor

import "github.com/banshee-data/lostnav/internal/lost"

func opsf(format string, args ...interface{}) {
	lost.Opsf("[monitor] "+format, args...)
}

func diagf(format string, args ...interface{}) {
	lost.Diagf("[monitor] "+format, args...)
}
