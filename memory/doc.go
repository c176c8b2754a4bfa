// Package memory holds conversation history as ordered turns of content
// blocks. The in-process Memory suits single-process agents; the redis
// subpackage persists sessions across processes behind the same Store
// interface.
package memory
