package enum

type KVStoreType string
type CheckpointType string
type SourceType string

const (
	KVStoreTypeBadger KVStoreType = "badger"
	KVStoreTypeConsul KVStoreType = "consul"
)

const (
	CheckpointTypeFile CheckpointType = "file"
	CheckpointTypeKV   CheckpointType = "kv"
)

// SourceType selects the ingestion step a sync source runs.
const (
	SourceEthereumBlock     SourceType = "ethereum_block"
	SourceEthereumTxReceipt SourceType = "ethereum_tx_receipt"
	SourceL2TxBatch         SourceType = "l2_tx_batch"
)
