package relayer

import "math/big"

// RewardPercent of the locked amount is paid out in the reward asset after
// a successful mint.
const RewardPercent = 10

// RewardAmount computes RewardPercent of the locked amount with integer
// arithmetic, rounding down.
func RewardAmount(amount *big.Int) *big.Int {
	reward := new(big.Int).Mul(amount, big.NewInt(RewardPercent))
	return reward.Div(reward, big.NewInt(100))
}
