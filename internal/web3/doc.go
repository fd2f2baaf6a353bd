// Package web3 houses blockchain connectivity utilities: read-only RPC
// clients and multi-chain configuration helpers. It lets the assistant
// query balances and network metadata on Mantle and other EVM networks
// without ever holding keys or sending transactions.
package web3
