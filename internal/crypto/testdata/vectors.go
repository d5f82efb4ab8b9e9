package testdata

// KeyVector pairs a wallet identity with its derived key.
type KeyVector struct {
	Name     string
	Identity string
	Key      string // Hex
}

// KeyVectors are known-answer vectors for identity key derivation.
var KeyVectors = []KeyVector{
	{
		Name:     "short hex address",
		Identity: "0xabc",
		Key:      "b4b6bbcdbd76a2f67a0dd9a8fd697e439054528aa1d4482bb64cfdc4d18eac48",
	},
	{
		Name:     "full hex address",
		Identity: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		Key:      "b0701f226251991a4dc12e4ea6a83bd9ecc0febb1d648a4712c4f80395790fa7",
	},
	{
		Name:     "name service identity",
		Identity: "  alice.eth ",
		Key:      "02701be226054870ed07d71c69f271661fcbb64cdc4eae5211d0897e7b2da1ab",
	},
}

// HelloSHA256 is the hex SHA-256 of "hello".
const HelloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// RoundTripSizes covers block and buffer boundaries.
var RoundTripSizes = []int{1, 15, 16, 17, 4095, 4096, 4097, 1<<20 + 3}
