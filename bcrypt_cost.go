//go:build !race

package auth

func passwordHashCost() int {
	// Deliberately above DefaultCost to resist offline brute force.
	return 14
}
