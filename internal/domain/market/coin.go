// Package market holds the static market-data model: the coin catalog,
// the per-day price snapshots, and the provider contract every session
// reads from. Everything here is read-only after load and safe to
// share across sessions.
package market

// Coin identifies one tradable asset in the catalog.
type Coin struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Catalog is the ordered set of tradable coins. Sessions iterate it so
// event output is deterministic.
type Catalog []Coin

// ByID returns the coin with the given id.
func (c Catalog) ByID(id int) (Coin, bool) {
	for _, coin := range c {
		if coin.ID == id {
			return coin, true
		}
	}
	return Coin{}, false
}

// ByName returns the coin with the given display name.
func (c Catalog) ByName(name string) (Coin, bool) {
	for _, coin := range c {
		if coin.Name == name {
			return coin, true
		}
	}
	return Coin{}, false
}

// DefaultCatalog lists every coin present in the historical data set.
// The display names match the keys used in the price-table file.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: 1, Name: "Binance Coin"},
		{ID: 2, Name: "Bitcoin"},
		{ID: 3, Name: "Cardano"},
		{ID: 4, Name: "Chainlink"},
		{ID: 5, Name: "Crypto.com Coin"},
		{ID: 6, Name: "Dogecoin"},
		{ID: 7, Name: "EOS"},
		{ID: 8, Name: "Ethereum"},
		{ID: 9, Name: "IOTA"},
		{ID: 10, Name: "Litecoin"},
		{ID: 11, Name: "Monero"},
		{ID: 12, Name: "NEM"},
		{ID: 13, Name: "Stellar"},
		{ID: 14, Name: "Tether"},
		{ID: 15, Name: "TRON"},
		{ID: 16, Name: "XRP"},
	}
}
