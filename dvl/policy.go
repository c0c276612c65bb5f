package dvl

// Decision names the sinks a frame goes to.
type Decision struct {
	Raw        bool
	Structured bool
}

// Dispatch decides where a decoded frame is forwarded. With raw logging on,
// every frame goes to the raw sink. With it off, only velocity frames do,
// alongside their structured report.
func Dispatch(doLogRaw bool, kind Kind) Decision {
	velocity := kind == KindVelocity
	return Decision{
		Raw:        doLogRaw || velocity,
		Structured: velocity,
	}
}
