// Package feed streams committed ledger events over websockets.
package feed

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// Message is the wire form of a ledger event. Amounts are decimal strings.
type Message struct {
	Seq           uint64 `json:"seq"`
	Kind          string `json:"kind"`
	Token         string `json:"token,omitempty"`
	Account       string `json:"account,omitempty"`
	PositionIndex uint64 `json:"position_index"`
	Amount        string `json:"amount"`
	Penalty       string `json:"penalty"`
	Fee           string `json:"fee"`
	Bonus         string `json:"bonus"`
	Reward        string `json:"reward"`
	Forced        bool   `json:"forced"`
	Block         uint64 `json:"block"`
	Timestamp     int64  `json:"timestamp"`
}

// FromEvent converts an event to its wire form.
func FromEvent(ev domain.Event) Message {
	return Message{
		Seq:           ev.Seq,
		Kind:          ev.Kind.String(),
		Token:         ev.Token.String(),
		Account:       ev.Account.String(),
		PositionIndex: ev.PositionIndex,
		Amount:        amountString(ev.Amount),
		Penalty:       amountString(ev.Penalty),
		Fee:           amountString(ev.Fee),
		Bonus:         amountString(ev.Bonus),
		Reward:        amountString(ev.Reward),
		Forced:        ev.Forced,
		Block:         ev.Block,
		Timestamp:     ev.Timestamp,
	}
}

// Event converts the message back to a ledger event.
func (m Message) Event() (domain.Event, error) {
	ev := domain.Event{
		Seq:           m.Seq,
		Kind:          domain.EventKind(m.Kind),
		Token:         domain.Address(m.Token),
		Account:       domain.Address(m.Account),
		PositionIndex: m.PositionIndex,
		Forced:        m.Forced,
		Block:         m.Block,
		Timestamp:     m.Timestamp,
	}
	fields := []struct {
		dst *sdkmath.Int
		src string
	}{
		{&ev.Amount, m.Amount},
		{&ev.Penalty, m.Penalty},
		{&ev.Fee, m.Fee},
		{&ev.Bonus, m.Bonus},
		{&ev.Reward, m.Reward},
	}
	for _, f := range fields {
		if f.src == "" {
			*f.dst = sdkmath.ZeroInt()
			continue
		}
		v, ok := sdkmath.NewIntFromString(f.src)
		if !ok {
			return domain.Event{}, fmt.Errorf("event %d: invalid amount %q", m.Seq, f.src)
		}
		*f.dst = v
	}
	return ev, nil
}

func amountString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
