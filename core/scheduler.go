package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var timerList *Timer

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	InsertTimer(t)
}

// CancelTimer removes a timer from the schedule. It reports whether the
// timer was pending.
func CancelTimer(t *Timer) bool {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	return RemoveTimer(t)
}

// InsertTimer inserts a timer in sorted order by WakeTime.
// Caller must have interrupts disabled.
func InsertTimer(t *Timer) {
	if timerList == nil || t.WakeTime < timerList.WakeTime {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// RemoveTimer unlinks t if it is pending. Caller must have interrupts disabled.
func RemoveTimer(t *Timer) bool {
	if timerList == nil {
		return false
	}
	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return true
	}
	for current := timerList; current.Next != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// NextWakeTime returns the wake time of the earliest pending timer.
func NextWakeTime() (uint64, bool) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if timerList == nil {
		return 0, false
	}
	return timerList.WakeTime, true
}

// TimerDispatch processes timers due at or before now. Handlers run with
// interrupts disabled, exactly as an interrupt handler would.
func TimerDispatch(now uint64) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	for timerList != nil && timerList.WakeTime <= now {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			InsertTimer(timer)
		}
	}
}

// ResetTimers drops every pending timer.
func ResetTimers() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	for timerList != nil {
		next := timerList.Next
		timerList.Next = nil
		timerList = next
	}
}
