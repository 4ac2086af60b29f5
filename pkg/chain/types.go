package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DepositLog is a decoded Deposit(address token, address from, address
// to, uint256 amount, uint256 nonce) event, per spec.md §4.2.
type DepositLog struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Amount      *big.Int
	Nonce       *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}
