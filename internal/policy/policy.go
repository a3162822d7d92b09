// Package policy maps reaction kinds to karma deltas. The mapping is
// configuration, not code: the reconciliation core treats it as a black box
// and never hardcodes point values.
package policy

import "github.com/okroshka/karmabot/internal/core"

// Config is the YAML shape of the reaction policy.
type Config struct {
	Positive      []string `yaml:"positive"`
	Negative      []string `yaml:"negative"`
	PositiveDelta int64    `yaml:"positive_delta"`
	NegativeDelta int64    `yaml:"negative_delta"`
}

// Policy resolves a reaction kind to a karma delta. Unknown kinds resolve to
// zero and cause no state transition.
type Policy struct {
	deltas map[core.ReactionKind]int64
}

// New builds a Policy from a config. Zero-valued deltas fall back to +1/-1.
func New(cfg Config) *Policy {
	pos := cfg.PositiveDelta
	if pos == 0 {
		pos = 1
	}
	neg := cfg.NegativeDelta
	if neg == 0 {
		neg = -1
	}
	deltas := make(map[core.ReactionKind]int64, len(cfg.Positive)+len(cfg.Negative))
	for _, kind := range cfg.Positive {
		deltas[core.ReactionKind(kind)] = pos
	}
	for _, kind := range cfg.Negative {
		deltas[core.ReactionKind(kind)] = neg
	}
	return &Policy{deltas: deltas}
}

// Default returns the stock emoji policy shipped in the starter config.
func Default() *Policy {
	return New(DefaultConfig())
}

// DefaultConfig lists the reaction kinds the bot recognizes out of the box.
func DefaultConfig() Config {
	return Config{
		Positive: []string{
			"👍", "🙏", "🤝", "👏", "💯", "🏆", "😍", "🤩", "🔥", "💥", "❤‍🔥", "❤", "📝", "✍",
		},
		Negative: []string{
			"👎", "💔", "🤮", "💩",
		},
		PositiveDelta: 1,
		NegativeDelta: -1,
	}
}

// DeltaFor returns the karma delta for a reaction kind, or 0 if the kind is
// not karma-bearing.
func (p *Policy) DeltaFor(kind core.ReactionKind) int64 {
	return p.deltas[kind]
}
