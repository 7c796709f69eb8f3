package visualiser

import "github.com/banshee-data/lostnav/internal/lost"

func opsf(format string, args ...interface{}) {
	lost.Opsf("[visualiser] "+format, args...)
}

func diagf(format string, args ...interface{}) {
	lost.Diagf("[visualiser] "+format, args...)
}
