// Package common contains common constants and variables used across services
package common

const (
	SuiFramework  = "0x2"
	SuiCoinType   = "0x2::sui::SUI"
	ClockObjectID = "0x6"

	// ZeroAddress is the default dev-inspect sender.
	ZeroAddress = "0x0000000000000000000000000000000000000000000000000000000000000000"

	BpsDenominator = 10_000
)
