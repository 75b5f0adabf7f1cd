package etherman

import "github.com/ethereum/go-ethereum/common"

type Config struct {
	// URL is the destination chain json rpc endpoint
	URL string

	// WrappedTokenAddress is the deployed wrapped asset contract
	WrappedTokenAddress common.Address

	// RewardTokenAddress is the deployed reward asset contract
	RewardTokenAddress common.Address

	// GasLimitCap bounds the gas limit of submitted transactions.
	// 0 means no cap.
	GasLimitCap uint64
}
