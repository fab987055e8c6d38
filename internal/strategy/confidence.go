package strategy

// Confidence accumulates the shared scoring bands. Base 50, capped at 95.
type Confidence struct {
	score float64
}

const (
	confidenceBase = 50.0
	confidenceCap  = 95.0
)

func NewConfidence() *Confidence {
	return &Confidence{score: confidenceBase}
}

// Strength scores a signal magnitude in percent (deviation, breakout, divergence).
func (c *Confidence) Strength(pct float64) *Confidence {
	if pct < 0 {
		pct = -pct
	}
	switch {
	case pct >= 2.0:
		c.score += 20
	case pct >= 1.0:
		c.score += 15
	case pct >= 0.5:
		c.score += 10
	default:
		c.score += 5
	}
	return c
}

func (c *Confidence) Volume(ratio float64) *Confidence {
	switch {
	case ratio >= 2.0:
		c.score += 15
	case ratio >= 1.5:
		c.score += 10
	case ratio >= 1.2:
		c.score += 5
	}
	return c
}

// Aligned adds the timing/trend bonus.
func (c *Confidence) Aligned(ok bool) *Confidence {
	if ok {
		c.score += 10
	}
	return c
}

func (c *Confidence) Value() float64 {
	return clampConfidence(c.score)
}

func clampConfidence(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > confidenceCap {
		return confidenceCap
	}
	return v
}
