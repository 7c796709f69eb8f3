package l4consistency

import "github.com/banshee-data/lostnav/internal/lost"

func opsf(format string, args ...interface{}) {
	lost.Opsf("[l4consistency] "+format, args...)
}

func diagf(format string, args ...interface{}) {
	lost.Diagf("[l4consistency] "+format, args...)
}

func tracef(format string, args ...interface{}) {
	lost.Tracef("[l4consistency] "+format, args...)
}
