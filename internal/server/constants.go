package server

import "time"

const (
	// levelInterval is how often the input level is pushed to clients.
	levelInterval = 250 * time.Millisecond

	// writeTimeout bounds a single websocket write so one dead client
	// cannot stall a broadcast goroutine forever.
	writeTimeout = 5 * time.Second
)
