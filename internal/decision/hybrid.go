package decision

// Hybrid reports the original decision as authoritative and attaches the
// enhanced decision as secondary information.
type Hybrid struct {
	primary   *Original
	secondary *Enhanced
}

// NewHybrid combines the two frameworks.
func NewHybrid(primary *Original, secondary *Enhanced) *Hybrid {
	return &Hybrid{primary: primary, secondary: secondary}
}

// Framework implements Strategy.
func (h *Hybrid) Framework() Framework { return FrameworkHybrid }

// Decide implements Strategy.
func (h *Hybrid) Decide(in Input) Decision {
	d := h.primary.Decide(in)
	secondary := h.secondary.Decide(in)
	d.Framework = FrameworkHybrid
	d.Secondary = &secondary
	return d
}
