package strategy

type newsAIParams struct {
	exitParams `mapstructure:",squash"`

	MinConfidence float64 `mapstructure:"min_confidence"`
	DefaultQty    float64 `mapstructure:"default_qty"`
}

func (p newsAIParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.MinConfidence < 0 || p.MinConfidence > 100 {
		return invalid("min_confidence must be in [0,100]")
	}
	if p.DefaultQty <= 0 {
		return invalid("default_qty must be > 0")
	}
	return nil
}

// NewsAI is driven by events; entries come from the AI evaluator, so the
// polling checks only manage exits on stored targets.
type NewsAI struct {
	base
	cfg newsAIParams
}

func newNewsAI(p Params, _ Deps) (Strategy, error) {
	var cfg newsAIParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &NewsAI{base: newBase(KindNewsAI, RegimeReactive, p, cfg.MinHistory), cfg: cfg}, nil
}

func (n *NewsAI) MinConfidence() float64 { return n.cfg.MinConfidence }

func (n *NewsAI) DefaultQty() float64 { return n.cfg.DefaultQty }

// FallbackTargets are used when the evaluator supplies no profit or stop level.
func (n *NewsAI) FallbackTargets(side Side, entry float64) Targets {
	return n.cfg.targets(side, entry)
}

func (n *NewsAI) CheckEntry(Input) EntrySignal {
	return hold("entries are event driven")
}

func (n *NewsAI) CheckExit(in Input, pos Position) ExitSignal {
	if sig, ok := n.cfg.exitOnTargets(pos, in.price()); ok {
		return sig
	}
	return stay("targets not reached")
}

func (n *NewsAI) Analyze(in Input) Decision { return analyze(n, in) }
