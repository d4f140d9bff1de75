package grid

import "github.com/sirupsen/logrus"

var _lg = logrus.StandardLogger()

// SetLogger overrides the package-level logger used by device models.
func SetLogger(l *logrus.Logger) {
	_lg = l
}
