package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeDepositLog_RoundTrip(t *testing.T) {
	token := common.HexToAddress("0x000000000000000000000000000000000000aa")
	from := common.HexToAddress("0x000000000000000000000000000000000000bb")
	to := common.HexToAddress("0x000000000000000000000000000000000000cc")
	amount := big.NewInt(1000)
	nonce := big.NewInt(7)

	data, err := BridgeABI.Events["Deposit"].Inputs.NonIndexed().Pack(from, to, amount, nonce)
	if err != nil {
		t.Fatalf("failed to pack test data: %v", err)
	}

	l := types.Log{
		Topics: []common.Hash{
			DepositEventSignature,
			common.BytesToHash(token.Bytes()),
		},
		Data:        data,
		TxHash:      common.HexToHash("0x1234"),
		BlockNumber: 100,
	}

	dep, err := decodeDepositLog(l)
	if err != nil {
		t.Fatalf("decodeDepositLog: %v", err)
	}

	if dep.Token != token {
		t.Errorf("token = %s, want %s", dep.Token.Hex(), token.Hex())
	}
	if dep.From != from {
		t.Errorf("from = %s, want %s", dep.From.Hex(), from.Hex())
	}
	if dep.To != to {
		t.Errorf("to = %s, want %s", dep.To.Hex(), to.Hex())
	}
	if dep.Amount.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", dep.Amount, amount)
	}
	if dep.Nonce.Cmp(nonce) != 0 {
		t.Errorf("nonce = %s, want %s", dep.Nonce, nonce)
	}
	if dep.BlockNumber != 100 {
		t.Errorf("block number = %d, want 100", dep.BlockNumber)
	}
}

func TestDecodeDepositLog_MissingTxHash(t *testing.T) {
	l := types.Log{
		Topics: []common.Hash{DepositEventSignature, common.Hash{}},
		Data:   []byte{},
		TxHash: common.Hash{},
	}
	if _, err := decodeDepositLog(l); err == nil {
		t.Fatal("expected error for missing transaction hash")
	}
}

func TestDecodeDepositLog_MissingTokenTopic(t *testing.T) {
	l := types.Log{
		Topics: []common.Hash{DepositEventSignature},
		TxHash: common.HexToHash("0x1"),
	}
	if _, err := decodeDepositLog(l); err == nil {
		t.Fatal("expected error for missing token topic")
	}
}

func TestPackProcessedDeposits(t *testing.T) {
	data, err := BridgeABI.Pack("processedDeposits", big.NewInt(7))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(data) < 4 {
		t.Fatalf("expected at least a 4-byte selector, got %d bytes", len(data))
	}
}
