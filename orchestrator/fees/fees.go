// Package fees holds the settlement fee arithmetic. All amounts are wei and
// computed in 256-bit integer space; nothing here touches floats.
package fees

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const bpsDenominator = 10_000

// Settlement is the wei split of one profitable execution.
type Settlement struct {
	// Fee reimburses gas, capped at the gross profit.
	Fee *uint256.Int `json:"fee_wei"`
	// Net is the profit remaining after the fee.
	Net *uint256.Int `json:"net_wei"`
	// Protocol is the protocol's share of the net.
	Protocol *uint256.Int `json:"protocol_wei"`
	// Bot is what the submitting strategy keeps.
	Bot *uint256.Int `json:"bot_wei"`
}

// Settle splits a gross profit between gas reimbursement, the protocol, and
// the bot. The fee never exceeds the profit, so the net is never negative.
func Settle(profit, gasCost *uint256.Int, protocolShareBps uint64) (*Settlement, error) {
	if profit == nil || gasCost == nil {
		return nil, errors.New("profit and gas cost are required")
	}
	if protocolShareBps > bpsDenominator {
		return nil, errors.Errorf("protocol share %d bps exceeds %d", protocolShareBps, bpsDenominator)
	}

	fee := new(uint256.Int).Set(gasCost)
	if fee.Gt(profit) {
		fee.Set(profit)
	}
	net := new(uint256.Int).Sub(profit, fee)

	protocol := new(uint256.Int).Mul(net, uint256.NewInt(protocolShareBps))
	protocol.Div(protocol, uint256.NewInt(bpsDenominator))
	bot := new(uint256.Int).Sub(net, protocol)

	return &Settlement{Fee: fee, Net: net, Protocol: protocol, Bot: bot}, nil
}
