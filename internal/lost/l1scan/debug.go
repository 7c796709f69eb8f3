package l1scan

import "github.com/banshee-data/lostnav/internal/lost"

func tracef(format string, args ...interface{}) {
	lost.Tracef("[l1scan] "+format, args...)
}
