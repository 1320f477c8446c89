// Package simulation replays scripted lock-up scenarios against an
// in-memory ledger, reward emitter and token ledger.
package simulation

import (
	"bytes"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"lockup-ledger/internal/config"
)

// Scenario is a scripted sequence of ledger operations.
type Scenario struct {
	Name    string `yaml:"name"`
	Genesis struct {
		Block uint64 `yaml:"block"`
		Time  int64  `yaml:"time"`
	} `yaml:"genesis"`

	Owner   string `yaml:"owner"`
	Fund    string `yaml:"fund"`
	Custody string `yaml:"custody"`
	Minter  string `yaml:"minter"`

	Reward struct {
		Token           string        `yaml:"token"`
		StartBlock      uint64        `yaml:"start_block"`
		RewardBlocks    uint64        `yaml:"reward_blocks"`
		BonusBlocks     uint64        `yaml:"bonus_blocks"`
		RatePerBlock    config.Amount `yaml:"rate_per_block"`
		BonusMultiplier uint64        `yaml:"bonus_multiplier"`
	} `yaml:"reward"`

	Assets []Asset `yaml:"assets"`
	Steps  []Step  `yaml:"steps"`
}

// Asset is a token created before the first step.
type Asset struct {
	ID       string        `yaml:"id"`
	Symbol   string        `yaml:"symbol"`
	Decimals uint8         `yaml:"decimals"`
	Holder   string        `yaml:"holder"`
	Supply   config.Amount `yaml:"supply"`
}

// Step is one action. Fields not used by the action are ignored.
type Step struct {
	Action string `yaml:"action"`
	Caller string `yaml:"caller"`
	Token  string `yaml:"token"`
	To     string `yaml:"to"`

	Amount      config.Amount `yaml:"amount"`
	Months      uint64        `yaml:"months"`
	Index       uint64        `yaml:"index"`
	Force       bool          `yaml:"force"`
	Multiplier  uint64        `yaml:"multiplier"`
	SettleAll   bool          `yaml:"settle_all"`
	On          bool          `yaml:"on"`
	SkipApprove bool          `yaml:"skip_approve"`

	// advance
	Blocks  uint64 `yaml:"blocks"`
	Seconds int64  `yaml:"seconds"`

	// Error names the error kind the step must fail with, e.g. MaxLimitExceeded.
	Error  string  `yaml:"error"`
	Expect []Check `yaml:"expect"`
}

// Check is an assertion evaluated after its step.
type Check struct {
	Kind    string        `yaml:"kind"`
	Account string        `yaml:"account"`
	Token   string        `yaml:"token"`
	Index   uint64        `yaml:"index"`
	Amount  config.Amount `yaml:"amount"`
	State   string        `yaml:"state"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.applyDefaults()
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Owner == "" {
		sc.Owner = "owner"
	}
	if sc.Fund == "" {
		sc.Fund = "fund"
	}
	if sc.Custody == "" {
		sc.Custody = "custody"
	}
	if sc.Minter == "" {
		sc.Minter = "minter"
	}
	if sc.Reward.BonusMultiplier == 0 {
		sc.Reward.BonusMultiplier = 1
	}
	if sc.Reward.RatePerBlock.IsNil() {
		sc.Reward.RatePerBlock.Int = sdkmath.ZeroInt()
	}
	for i := range sc.Assets {
		if sc.Assets[i].Supply.IsNil() {
			sc.Assets[i].Supply.Int = sdkmath.ZeroInt()
		}
		if sc.Assets[i].Symbol == "" {
			sc.Assets[i].Symbol = sc.Assets[i].ID
		}
	}
}

func (sc *Scenario) validate() error {
	if sc.Reward.Token == "" {
		return fmt.Errorf("scenario %q: reward.token is required", sc.Name)
	}
	for i, st := range sc.Steps {
		if _, ok := actions[st.Action]; !ok {
			return fmt.Errorf("step %d: unknown action %q", i+1, st.Action)
		}
		if st.Error != "" {
			if _, ok := errorKinds[st.Error]; !ok {
				return fmt.Errorf("step %d: unknown error kind %q", i+1, st.Error)
			}
		}
		for j, c := range st.Expect {
			if _, ok := checks[c.Kind]; !ok {
				return fmt.Errorf("step %d check %d: unknown kind %q", i+1, j+1, c.Kind)
			}
		}
	}
	return nil
}
