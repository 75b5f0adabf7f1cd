package chainpoller

import (
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// Events
	EthLockedSignatureHash = crypto.Keccak256Hash([]byte("EthLocked(address,uint256,uint256)"))
)

const LockContractABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"user","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"originChainId","type":"uint256"}
	],"name":"EthLocked","type":"event"}
]`
