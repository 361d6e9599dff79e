package fee

import (
	"errors"
	"math/bits"
)

// DefaultPrecision expresses rates in parts per thousand.
const DefaultPrecision = 1000

// ErrInvalidConfig indicates a fee configuration that cannot be applied.
var ErrInvalidConfig = errors.New("invalid fee configuration")

// Config holds the treasury fee parameters. It is set once at startup.
type Config struct {
	Rate      uint64 `yaml:"fee_rate" toml:"fee_rate" json:"rate"`
	Precision uint64 `yaml:"fee_precision" toml:"fee_precision" json:"precision"`
}

// Validate checks that the rate is a fraction of the precision.
func (c Config) Validate() error {
	if c.Precision == 0 {
		return ErrInvalidConfig
	}
	if c.Rate > c.Precision {
		return ErrInvalidConfig
	}
	return nil
}

// Policy computes the treasury share of a deposit.
type Policy struct {
	cfg Config
}

// NewPolicy creates a fee policy from a validated config.
func NewPolicy(cfg Config) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{cfg: cfg}, nil
}

// Config returns the immutable parameters of the policy.
func (p Policy) Config() Config {
	return p.cfg
}

// Compute splits gross into the net amount and the treasury fee.
// The fee is floor(gross*rate/precision); any division remainder stays in net,
// so net+fee == gross for every input.
func (p Policy) Compute(gross uint64) (net, fee uint64) {
	if p.cfg.Rate == 0 || gross == 0 {
		return gross, 0
	}
	hi, lo := bits.Mul64(gross, p.cfg.Rate)
	// rate <= precision keeps the quotient within gross, so hi < precision.
	fee, _ = bits.Div64(hi, lo, p.cfg.Precision)
	return gross - fee, fee
}
