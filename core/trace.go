package core

// TraceEvent captures a timing-critical event for post-mortem analysis.
// Interrupt handlers cannot log; they record here instead.
type TraceEvent struct {
	Kind   uint8  // Event type code
	Clock  uint64 // System clock at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtArm      = 1 // Chunk armed: v1 = chunk, v2 = remaining after it
	EvtComplete = 2 // Completion interrupt: v1 = arms so far, v2 = remaining
	EvtCancel   = 3 // Motion cancelled: v1 = remaining dropped
	EvtDone     = 4 // Done signalled: v1 = arms, v2 = 1 on error
	EvtInstant  = 5 // Count of 0 or 1 finished without arming: v1 = count
)

const TraceRingSize = 32

var (
	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
)

// RecordTrace appends an event to the ring buffer. Never blocks, never
// allocates. Caller must have interrupts disabled.
func RecordTrace(kind uint8, value1, value2 uint32) {
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		Kind:   kind,
		Clock:  GetTime(),
		Value1: value1,
		Value2: value2,
	}
	traceRingHead = (idx + 1) % TraceRingSize
}

// TraceSnapshot copies the recorded events, oldest first, into dst and
// returns how many were copied.
func TraceSnapshot(dst []TraceEvent) int {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	n := 0
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize && n < len(dst); i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		dst[n] = evt
		n++
	}
	return n
}

// ClearTrace empties the ring buffer
func ClearTrace() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
}

// TraceName returns a printable name for an event kind
func TraceName(kind uint8) string {
	switch kind {
	case EvtArm:
		return "ARM"
	case EvtComplete:
		return "COMPLETE"
	case EvtCancel:
		return "CANCEL"
	case EvtDone:
		return "DONE"
	case EvtInstant:
		return "INSTANT"
	default:
		return "UNKNOWN"
	}
}
