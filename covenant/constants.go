package covenant

const (
	// N_REGULATORS is the fixed regulator committee size. Every member signs.
	N_REGULATORS = 3

	PUBKEY_HASH_BYTES       = 20
	COMPRESSED_PUBKEY_BYTES = 33

	// LOCKTIME_THRESHOLD splits timelock values: below it is a block height,
	// at or above it is a unix timestamp.
	LOCKTIME_THRESHOLD uint32 = 500_000_000

	// SEQUENCE_FINAL disables locktime enforcement for an input.
	SEQUENCE_FINAL uint32 = 0xffffffff

	SIGHASH_ALL        byte = 0x01
	SIGHASH_FORKID     byte = 0x40
	SIGHASH_ALL_FORKID      = SIGHASH_ALL | SIGHASH_FORKID

	MAX_DER_SIG_BYTES = 72
)

const (
	COV_TYPE_P2PKH            uint16 = 0x0000
	COV_TYPE_ENERGY_ESCROW    uint16 = 0x0101
	COV_TYPE_TRADE_SETTLEMENT uint16 = 0x0102
)

const (
	P2PKH_COVENANT_DATA_BYTES            = PUBKEY_HASH_BYTES
	ESCROW_COVENANT_DATA_BYTES           = 20 + 20 + 8 + 8
	TRADE_SETTLEMENT_COVENANT_DATA_BYTES = 20 + 20 + N_REGULATORS*COMPRESSED_PUBKEY_BYTES + 4 + 8
)

// PubKeyHash is a party identity commitment: hash160 of the party's public key.
type PubKeyHash [PUBKEY_HASH_BYTES]byte

// PubKey is a serialized secp256k1 public key.
type PubKey []byte

// Sig is a DER signature followed by a single sighash-type byte.
type Sig []byte

// RegulatorCommittee is ordered; signature i must come from member i.
type RegulatorCommittee [N_REGULATORS]PubKey
