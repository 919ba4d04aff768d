// Package protocol owns the wire contract and parsing primitives.
//
// Ownership boundary:
// - request body codec (argc + length-prefixed arguments)
// - tagged response values (Nil, Error, String, Integer, Double, Array)
// - bounded cursor used by every decode path
//
// Framing (the u32 length prefix around a body) lives in the frame subpackage.
//
// All wire integers are fixed-width little-endian.
//
// Request body:
//
//	[u32 argc] argc x { [u32 len] [len bytes] }
//
// Tagged value:
//
//	0 Nil      no payload
//	1 Error    [u32 code] [u32 len] [len bytes]
//	2 String   [u32 len] [len bytes]
//	3 Integer  [i64]
//	4 Double   [f64 IEEE-754]
//	5 Array    [u32 count] count x <tagged value>
package protocol
