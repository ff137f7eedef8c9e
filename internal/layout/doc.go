// Package layout reads dataset raw data for the compact, contiguous and
// chunked storage classes, and enumerates the stored chunks of a chunked
// dataset through whichever index the file uses.
package layout
