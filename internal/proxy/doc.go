// Package proxy is the browser-facing half of the relay.
//
// It answers CORS preflights, injects the shared secret into every POST body
// and forwards reads and writes to the upstream handler. The secret never
// reaches the browser.
//
// Response mapping:
//   - OPTIONS: 200, empty body
//   - upstream URL or secret unset: 500 "server configuration error"
//   - GET: upstream JSON relayed as-is; any failure is 500 "failed to load data"
//   - POST: upstream JSON relayed as-is, non-JSON text relayed unchanged;
//     a transport failure is 500 "failed to save data"
//   - anything else: 405 "Method not allowed"
package proxy
