package l3grid

import "github.com/banshee-data/lostnav/internal/lost"

func opsf(format string, args ...interface{}) {
	lost.Opsf("[l3grid] "+format, args...)
}

func diagf(format string, args ...interface{}) {
	lost.Diagf("[l3grid] "+format, args...)
}
