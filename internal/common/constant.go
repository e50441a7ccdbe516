package common

// Keys in the string-keyed persistence stores.
const (
	// Remote (synced) store.
	AccountKey = "account"
	KeypairKey = "keypair"

	// Legacy local keys, consulted only when KeypairKey misses. Older
	// releases stored the two halves of the keypair separately on the
	// device-local store.
	LegacyPrivateKeyKey = "privateKey"
	LegacyPublicKeyKey  = "publicKey"

	// Local (device-only) store.
	AppIDKey = "appId"
)
