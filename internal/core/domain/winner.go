package domain

import "math/big"

// SelectWinner returns the index of the winning player for the given random
// word, ie. word mod numOfPlayers. numOfPlayers must be greater than 0.
func SelectWinner(word *big.Int, numOfPlayers int) int {
	mod := new(big.Int).Mod(word, big.NewInt(int64(numOfPlayers)))
	return int(mod.Int64())
}
