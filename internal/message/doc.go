// Package message parses and serializes object header messages.
package message
