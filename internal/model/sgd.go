package model

// SGDConfig holds the SGD hyper-parameters.
type SGDConfig struct {
	LR          float64 // default 0.01
	Momentum    float64 // [0, 1)
	WeightDecay float64
}

// SGD is stochastic gradient descent with optional momentum:
//
//	v = momentum*v + (grad + weightDecay*param)
//	param -= lr * v
type SGD struct {
	params   []*Param
	cfg      SGDConfig
	velocity [][]float64
}

// NewSGD returns an optimizer over params.
func NewSGD(params []*Param, cfg SGDConfig) *SGD {
	if cfg.LR <= 0 {
		cfg.LR = 0.01
	}
	if cfg.Momentum < 0 || cfg.Momentum >= 1 {
		cfg.Momentum = 0
	}
	velocity := make([][]float64, len(params))
	for i, p := range params {
		velocity[i] = make([]float64, len(p.Value))
	}
	return &SGD{params: params, cfg: cfg, velocity: velocity}
}

// LR returns the learning rate.
func (o *SGD) LR() float64 { return o.cfg.LR }

// ZeroGrad clears every parameter gradient.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// Step applies one update from the current gradients.
func (o *SGD) Step() {
	for pi, p := range o.params {
		v := o.velocity[pi]
		for i, g := range p.Grad {
			g += o.cfg.WeightDecay * p.Value[i]
			if o.cfg.Momentum > 0 {
				v[i] = o.cfg.Momentum*v[i] + g
				g = v[i]
			}
			p.Value[i] -= o.cfg.LR * g
		}
	}
}
