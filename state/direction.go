package state

type Direction int

const (
	Idle Direction = iota
	GoingDown
	GoingUp
)

func (d Direction) String() string {
	switch d {
	case GoingDown:
		return "going_down"
	case GoingUp:
		return "going_up"
	default:
		return "idle"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
