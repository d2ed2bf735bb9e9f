package workers

import "estate_scrooper/models"

// LogFunc receives a worker message. The daemon prints it to the process log.
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}
