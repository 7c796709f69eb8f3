package feed

import "github.com/banshee-data/lostnav/internal/lost"

func opsf(format string, args ...interface{}) {
	lost.Opsf("[feed] "+format, args...)
}

func diagf(format string, args ...interface{}) {
	lost.Diagf("[feed] "+format, args...)
}

func tracef(format string, args ...interface{}) {
	lost.Tracef("[feed] "+format, args...)
}
