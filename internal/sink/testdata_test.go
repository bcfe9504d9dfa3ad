package sink

const testSchema = `
ethereum_blocks:
  table: ethereum_blocks
  keys: [block_hash]
  columns:
    - name: block_hash
      field: hash
    - name: number
      type: numeric
    - name: gas_used
      field: gasUsed
      type: numeric
    - name: base_fee
      field: baseFeePerGas
      type: numeric
      nullable: true
    - name: extra
      field: extraData
      nullable: true
ethereum_logs:
  keys: [transaction_hash, log_index]
  columns:
    - name: transaction_hash
      field: transactionHash
    - name: log_index
      field: logIndex
      type: numeric
    - name: topics
      type: json
    - name: removed
      type: boolean
`
