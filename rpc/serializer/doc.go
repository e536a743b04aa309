// Package serializer converts common.Message values to bytes and back.
//
// Two formats are available:
//
//   - JSON (NewJSONSerializer): readable on the wire and the default of the command line
//     tools. Numbers in statement arguments and result rows come back as float64.
//
//   - GOB (NewGOBSerializer): keeps the Go types of arguments and row values
//     (int64, float64, string, []byte, bool, time.Time). Prefer it for Go clients.
//
// Client and server must use the same format. Both implementations are stateless and can
// be shared between goroutines.
package serializer
