// Package session mirrors live participant presence into Redis so operators
// and sibling services can see who is connected to which server and in what
// state. The mirror is write-only: the pairing core never reads it back.
package session
