package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// bridgeABIJSON describes the subset of the bridge contract's interface
// this relayer needs, per spec.md §6's "wire protocols consumed".
const bridgeABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true,  "name": "token",  "type": "address"},
			{"indexed": false, "name": "from",   "type": "address"},
			{"indexed": false, "name": "to",     "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "nonce",  "type": "uint256"}
		],
		"name": "Deposit",
		"type": "event"
	},
	{
		"inputs": [
			{"name": "token",  "type": "address"},
			{"name": "to",     "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "nonce",  "type": "uint256"}
		],
		"name": "distribute",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "nonce", "type": "uint256"}],
		"name": "processedDeposits",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "pause",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "unpause",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// BridgeABI is the parsed bridge contract ABI, shared by every Client.
var BridgeABI abi.ABI

// DepositEventSignature is keccak("Deposit(address,address,address,uint256,uint256)"),
// used as topic0 in the subscribe filter per spec.md §6.
var DepositEventSignature = crypto.Keccak256Hash([]byte("Deposit(address,address,address,uint256,uint256)"))

func init() {
	parsed, err := abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		panic("chain: invalid embedded bridge ABI: " + err.Error())
	}
	BridgeABI = parsed
}
