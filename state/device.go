package state

// Actuator drives the physical output behind a single light.
type Actuator interface {
	Write(on bool) error
}

// MotionSource delivers "motion detected" notifications for one end of the stairway.
// Registering a nil handler removes the current one.
type MotionSource interface {
	OnTriggered(handler func())
}

// ActuatorFunc adapts a plain function to the Actuator interface.
type ActuatorFunc func(on bool) error

func (f ActuatorFunc) Write(on bool) error {
	return f(on)
}
