package plancache

// Stored payloads carry a one-byte marker so a cached terminal planning
// error can be told apart from a plan without interpreting either. The
// bytes after the marker stay opaque to this package.
const (
	markerPlan  = 0x01
	markerError = 0x02
)

func encodePlan(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, markerPlan)
	return append(out, payload...)
}

func encodeError(err error) []byte {
	msg := err.Error()
	out := make([]byte, 0, len(msg)+1)
	out = append(out, markerError)
	return append(out, msg...)
}

// decodePayload splits an encoded payload into a plan or a cached error.
// The returned plan is a copy: callers may mutate it without corrupting
// the cached entry it was read from.
func decodePayload(encoded []byte) ([]byte, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	switch encoded[0] {
	case markerPlan:
		return append([]byte(nil), encoded[1:]...), nil
	case markerError:
		return nil, &PlanningError{Message: string(encoded[1:])}
	default:
		// Unmarked payloads cannot come from this cache (keys are
		// version-segmented), but pass them through rather than guess.
		return append([]byte(nil), encoded...), nil
	}
}
