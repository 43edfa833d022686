// Package conv converts between integer types with bounds checks.
//
// It is used where sizes cross a fixed-width boundary: dimensions written
// into raw bitmap headers, and blob sizes reported by remote stores.
package conv
