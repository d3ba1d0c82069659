package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Mint decimals never change once the mint is created
	TTLTokenMetadata = 30 * 24 * time.Hour

	// Daily closes only gain one point per day
	TTLPriceHistory = 6 * time.Hour

	// Spot prices move quickly; stale entries still serve as a fallback
	TTLCurrentPrice = time.Minute
)
