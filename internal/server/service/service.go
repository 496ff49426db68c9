package service

import (
	"github.com/mdouchement/unionboard/internal/database"
	"github.com/mdouchement/unionboard/internal/realtime"
	"github.com/sirupsen/logrus"
)

// M is an arbitrary map.
type M map[string]any

// Params are the dependencies shared by the services.
type Params struct {
	Database database.Client
	Broker   realtime.Broker
	Logger   logrus.FieldLogger
}

func (p Params) logger() logrus.FieldLogger {
	if p.Logger == nil {
		return logrus.StandardLogger()
	}
	return p.Logger
}
