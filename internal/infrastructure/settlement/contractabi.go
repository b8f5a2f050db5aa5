package settlement

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	methodExecuteWithSession = "executeWithSession"
	methodRegisterSession    = "registerSession"
	methodGetSession         = "getSession"
	methodIsPaymentExecuted  = "isPaymentExecuted"
)

// sessionPaymentABI covers the settlement contract functions the relayer calls.
const sessionPaymentABI = `[
	{
		"type": "function",
		"name": "executeWithSession",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "sessionId", "type": "bytes32"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "paymentId", "type": "bytes32"},
			{"name": "signature", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "registerSession",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "sessionId", "type": "bytes32"},
			{"name": "owner", "type": "address"},
			{"name": "signer", "type": "address"},
			{"name": "singleLimit", "type": "uint256"},
			{"name": "dailyLimit", "type": "uint256"},
			{"name": "expiry", "type": "uint64"},
			{"name": "ownerSignature", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "getSession",
		"stateMutability": "view",
		"inputs": [
			{"name": "sessionId", "type": "bytes32"}
		],
		"outputs": [
			{"name": "owner", "type": "address"},
			{"name": "signer", "type": "address"},
			{"name": "singleLimit", "type": "uint256"},
			{"name": "dailyLimit", "type": "uint256"},
			{"name": "usedToday", "type": "uint256"},
			{"name": "expiry", "type": "uint64"},
			{"name": "active", "type": "bool"}
		]
	},
	{
		"type": "function",
		"name": "isPaymentExecuted",
		"stateMutability": "view",
		"inputs": [
			{"name": "paymentId", "type": "bytes32"}
		],
		"outputs": [
			{"name": "", "type": "bool"}
		]
	}
]`

func parseSessionPaymentABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(sessionPaymentABI))
}
