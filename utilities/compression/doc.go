// Package compression packs raw disk images for storage in the repository and
// unpacks them again for tests and the command line tool.
//
// TR-DOS images are mostly runs of identical bytes: unformatted space is zeroes
// and freshly formatted sectors are filled with a single value. Run-length
// encoding the image first and then gzipping the result does much better than
// gzip alone. An empty 640 KiB image comes out at well under 100 bytes.
//
// The run-length encoding is RLE8. A run of N >= 2 copies of byte B is written
// as B B (N-2), so runs of up to 257 bytes take three bytes and longer runs are
// split. A lone byte is written as itself:
//
//	A BBBBBB C DD
//	A BB 4 C DD 0
//
// The cost is that a byte appearing exactly twice takes three bytes, which is
// rare enough in disk images not to matter.
package compression
