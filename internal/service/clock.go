package service

import "time"

// Clock abstrae la hora actual para poder fijarla en tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock devuelve el reloj del sistema en UTC.
func SystemClock() Clock {
	return systemClock{}
}
