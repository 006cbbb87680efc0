package motion

// Limits are the software position bounds and the reference offset, in
// steps. A valid set satisfies MinSteps <= RefSteps <= MaxSteps.
type Limits struct {
	MinSteps int32
	MaxSteps int32
	RefSteps int32
}

// Validate enforces MinSteps <= RefSteps <= MaxSteps.
func (l Limits) Validate() error {
	if l.MinSteps > l.MaxSteps {
		return configError("limits", "minimum %d above maximum %d", l.MinSteps, l.MaxSteps)
	}
	if l.RefSteps < l.MinSteps || l.RefSteps > l.MaxSteps {
		return configError("limits", "reference %d outside [%d, %d]", l.RefSteps, l.MinSteps, l.MaxSteps)
	}
	return nil
}

// Contains reports whether pos lies within [MinSteps, MaxSteps].
func (l Limits) Contains(pos int64) bool {
	return pos >= int64(l.MinSteps) && pos <= int64(l.MaxSteps)
}
