package store

import "fmt"

// ConnectionError is a fault on the session's connection: connecting,
// subscribing or waiting. The session is unusable afterwards.
type ConnectionError struct {
	Stage string // connect | provision | listen | wait
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProvisioningError reports the provisioning statement that failed. The
// transaction has been rolled back when it is returned.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
