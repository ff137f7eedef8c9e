// Package btree walks the B-trees HDF5 uses to index group members
// (version 1 group nodes) and dataset chunks (version 1 chunk nodes and
// version 2 records of types 10 and 11).
package btree
