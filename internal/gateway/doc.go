// Package gateway defines the upstream gateway collaborator and a websocket
// implementation of it.
//
// Each gateway process listens on its own port and serves one account's
// subscription quota. The wire protocol is JSON over websocket:
//
//	request:  {"id": 7, "cmd": "subscribe", "params": {...}}
//	response: {"id": 7, "type": "ok"|"error", "msg": {...}}
//	push:     {"type": "ticker", "msg": {...}}
//
// Commands: query_subscription, subscribe, global_state, stock_basicinfo.
package gateway
