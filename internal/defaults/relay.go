package defaults

// DefaultBridgeURL is the relay used when the caller does not override it
// (spec §6).
const DefaultBridgeURL = "wss://bridge.zkpassport.id"
