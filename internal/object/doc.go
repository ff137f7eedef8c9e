// Package object reads version 1 and 2 object headers, following
// continuation blocks, and writes version 2 headers.
package object
