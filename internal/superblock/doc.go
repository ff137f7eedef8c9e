// Package superblock locates and parses the file superblock, searching the
// standard user-block offsets for the signature.
package superblock
