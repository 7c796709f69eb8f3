package l2frames

import "github.com/banshee-data/lostnav/internal/lost"

func opsf(format string, args ...interface{}) {
	lost.Opsf("[l2frames] "+format, args...)
}

func diagf(format string, args ...interface{}) {
	lost.Diagf("[l2frames] "+format, args...)
}

func tracef(format string, args ...interface{}) {
	lost.Tracef("[l2frames] "+format, args...)
}
